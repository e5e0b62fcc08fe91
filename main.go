package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"pvb-go/backend"
	"pvb-go/cogs"
	"pvb-go/config"
	"pvb-go/dashboard"
	"pvb-go/session"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration failed")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
		log = log.Level(level)
	}

	// Analytics is optional: no DATABASE_URL means outcomes are not
	// recorded and the dashboard serves health only.
	var analytics *dashboard.Store
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		analytics, err = dashboard.NewStore(ctx, cfg.DatabaseURL, log)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("analytics store unavailable, continuing without it")
			analytics = nil
		} else {
			defer analytics.Close()
			log.Info().Msg("analytics store connected")
		}
	}

	onFinished := func(rec session.Record) {
		if analytics == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		analytics.Record(ctx, rec)
	}

	store := session.NewStore(log)
	defer store.Close()
	machine := session.NewMachine(store, log, cfg.IdleTimeout, cfg.HardTimeout, onFinished)
	defer machine.Close()

	client := backend.NewClient(cfg.BackendURL, log)

	deps := cogs.Deps{
		Machine:         machine,
		Backend:         client,
		Log:             log,
		ChallengeWindow: cfg.ChallengeWindow,
	}
	router := cogs.NewRouter(log)
	router.Register(cogs.NewPacks(deps))
	router.Register(cogs.NewShop(deps))
	router.Register(cogs.NewSellDuplicates(deps))
	router.Register(cogs.NewOpen(deps))
	router.Register(cogs.NewCollection(deps))
	router.Register(cogs.NewDex(deps))
	router.Register(cogs.NewChallenge(deps))

	var statsProvider dashboard.StatsProvider
	if analytics != nil {
		statsProvider = analytics
	}
	srv := dashboard.NewServer(cfg.DashboardAddr, statsProvider, log)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Error().Err(err).Msg("dashboard server stopped")
		}
	}()

	dg, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("discord session create failed")
	}
	dg.Identify.Intents = discordgo.IntentsGuilds

	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Info().Str("user", r.User.String()).Msg("logged in")
		if _, err := s.ApplicationCommandBulkOverwrite(r.User.ID, "", router.Commands()); err != nil {
			log.Error().Err(err).Msg("command registration failed")
		} else {
			log.Info().Int("count", len(router.Commands())).Msg("slash commands registered")
		}
	})
	dg.AddHandler(router.OnInteraction)

	if err := dg.Open(); err != nil {
		log.Fatal().Err(err).Msg("discord connection failed")
	}
	defer dg.Close()

	log.Info().Msg("bot running, press CTRL+C to exit")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("dashboard shutdown failed")
	}
}
