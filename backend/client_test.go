package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, zerolog.Nop())
}

func TestListDuplicates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/users/42/duplicates", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"card":{"id":"c1","name":"Embergeist","rarity":"rare"},"extras":3,"unit_price":120}]`))
	})

	dupes, err := c.ListDuplicates(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, dupes, 1)
	assert.Equal(t, "Embergeist", dupes[0].Card.Name)
	assert.Equal(t, 3, dupes[0].Extras)
}

func TestSellCardsBatchPayload(t *testing.T) {
	var got struct {
		UserID string `json:"user_id"`
		Sales  []Sale `json:"sales"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/sales", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"cards_sold":5,"earned":600,"balance":1600}`))
	})

	res, err := c.SellCards(context.Background(), "42", []Sale{
		{CardID: "c1", Quantity: 3},
		{CardID: "c2", Quantity: 2},
	})
	require.NoError(t, err)

	// The whole bulk action travels as one request.
	assert.Equal(t, "42", got.UserID)
	assert.Len(t, got.Sales, 2)
	assert.Equal(t, 5, res.CardsSold)
	assert.Equal(t, int64(600), res.Earned)
}

func TestErrorMapping(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"message":"insufficient funds"}`))
	})

	_, err := c.BuyPack(context.Background(), "42", "p1", 2)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusPaymentRequired, apiErr.Status)
	assert.Equal(t, "insufficient funds", apiErr.Message)
	assert.Equal(t, "insufficient funds", apiErr.UserMessage())
}

func TestErrorWithoutBodyFallsBackToStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := c.CancelChallenge(context.Background(), "ch1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Contains(t, apiErr.UserMessage(), "502")
}

func TestContextCancellation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ListPacks(ctx)
	assert.Error(t, err)
}
