// Package backend is the REST client for the external economy service. The
// backend owns all economy rules; this client only shapes requests and maps
// errors. Mutating endpoints are idempotency-unaware, so callers must
// prevent duplicate submission themselves; nothing here retries a POST.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"pvb-go/models"
)

// APIError is a non-2xx backend response. It is user-visible and
// non-fatal: the session resolves as failed and the message is rendered.
type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend: %d %s", e.Status, e.Message)
}

// UserMessage is the clean text shown in an embed.
func (e *APIError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("The game service rejected the request (status %d).", e.Status)
}

// Client talks to the economy API.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient builds a client for the given base URL.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("component", "backend").Logger(),
	}
}

// ListPacks returns the purchasable pack catalog.
func (c *Client) ListPacks(ctx context.Context) ([]models.Pack, error) {
	var out []models.Pack
	return out, c.get(ctx, "/api/packs", nil, &out)
}

// ListSealedPacks returns the user's unopened packs.
func (c *Client) ListSealedPacks(ctx context.Context, userID string) ([]models.Pack, error) {
	var out []models.Pack
	return out, c.get(ctx, "/api/users/"+userID+"/packs", url.Values{"sealed": {"true"}}, &out)
}

// ListCollection returns the user's owned cards.
func (c *Client) ListCollection(ctx context.Context, userID string) ([]models.Card, error) {
	var out []models.Card
	return out, c.get(ctx, "/api/users/"+userID+"/cards", nil, &out)
}

// ListDuplicates returns the user's sellable duplicate cards.
func (c *Client) ListDuplicates(ctx context.Context, userID string) ([]models.DuplicateGroup, error) {
	var out []models.DuplicateGroup
	return out, c.get(ctx, "/api/users/"+userID+"/duplicates", nil, &out)
}

// ListDex returns the user's dex entries.
func (c *Client) ListDex(ctx context.Context, userID string) ([]models.Card, error) {
	var out []models.Card
	return out, c.get(ctx, "/api/users/"+userID+"/dex", nil, &out)
}

// ListShop returns the non-pack shop catalog.
func (c *Client) ListShop(ctx context.Context) ([]models.ShopItem, error) {
	var out []models.ShopItem
	return out, c.get(ctx, "/api/shop", nil, &out)
}

// PurchaseResult is the outcome of a buy.
type PurchaseResult struct {
	Spent   int64 `json:"spent"`
	Balance int64 `json:"balance"`
}

// BuyPack purchases qty copies of a pack.
func (c *Client) BuyPack(ctx context.Context, userID, packID string, qty int) (*PurchaseResult, error) {
	var out PurchaseResult
	err := c.post(ctx, "/api/purchases", map[string]any{
		"user_id": userID, "pack_id": packID, "quantity": qty,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// BuyItem purchases qty of a shop item.
func (c *Client) BuyItem(ctx context.Context, userID, itemID string, qty int) (*PurchaseResult, error) {
	var out PurchaseResult
	err := c.post(ctx, "/api/purchases", map[string]any{
		"user_id": userID, "item_id": itemID, "quantity": qty,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Sale is one line of a batch sell request.
type Sale struct {
	CardID   string `json:"card_id"`
	Quantity int    `json:"quantity"`
}

// SellResult is the outcome of a batch sale.
type SellResult struct {
	CardsSold int   `json:"cards_sold"`
	Earned    int64 `json:"earned"`
	Balance   int64 `json:"balance"`
}

// SellCards sells a batch of duplicates in a single transactional call.
// Bulk "sell all" goes through here as one request; the backend applies it
// atomically, so a failure leaves nothing half-sold.
func (c *Client) SellCards(ctx context.Context, userID string, sales []Sale) (*SellResult, error) {
	var out SellResult
	err := c.post(ctx, "/api/sales", map[string]any{
		"user_id": userID, "sales": sales,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// OpenResult lists the cards pulled from an opened pack.
type OpenResult struct {
	Pulls  []models.Card `json:"pulls"`
	NewDex int           `json:"new_dex_entries"`
}

// OpenPack opens one sealed pack.
func (c *Client) OpenPack(ctx context.Context, userID, packID string) (*OpenResult, error) {
	var out OpenResult
	err := c.post(ctx, "/api/opens", map[string]any{
		"user_id": userID, "pack_id": packID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SetFeaturedCard sets the card featured on the user's profile.
func (c *Client) SetFeaturedCard(ctx context.Context, userID, cardID string) error {
	return c.post(ctx, "/api/users/"+userID+"/featured", map[string]any{
		"card_id": cardID,
	}, nil)
}

// CreateChallenge opens a pending challenge against an opponent.
func (c *Client) CreateChallenge(ctx context.Context, challengerID, opponentID string, wager int64) (*models.Challenge, error) {
	var out models.Challenge
	err := c.post(ctx, "/api/challenges", map[string]any{
		"challenger_id": challengerID, "opponent_id": opponentID, "wager": wager,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetChallenge fetches a challenge's current status.
func (c *Client) GetChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	var out models.Challenge
	if err := c.get(ctx, "/api/challenges/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RespondChallenge accepts or declines a pending challenge as the opponent.
func (c *Client) RespondChallenge(ctx context.Context, id, userID string, accept bool) (*models.Challenge, error) {
	var out models.Challenge
	err := c.post(ctx, "/api/challenges/"+id+"/respond", map[string]any{
		"user_id": userID, "accept": accept,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelChallenge cancels a still-pending challenge server-side. Used by
// the proposal window's domain timer.
func (c *Client) CancelChallenge(ctx context.Context, id string) error {
	return c.post(ctx, "/api/challenges/"+id+"/cancel", map[string]any{}, nil)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.decodeError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

// decodeError maps a non-2xx response into an APIError. The backend sends
// {"message": "..."}; anything unreadable falls back to the status alone.
func (c *Client) decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil {
		var parsed struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &parsed) == nil {
			apiErr.Message = parsed.Message
		}
	}
	c.log.Warn().Int("status", apiErr.Status).Str("path", resp.Request.URL.Path).
		Str("message", apiErr.Message).Msg("backend error")
	return apiErr
}
