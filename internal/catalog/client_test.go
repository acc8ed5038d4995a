package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products", r.URL.Path)
		assert.Equal(t, "coins100,ghost", r.URL.Query().Get("ids"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"products": [
				{"id": "coins100", "title": "100 Coins",
				 "description": "A pile of coins", "price": "4.99",
				 "locale": "en_US", "sku_group": "currency"}
			],
			"invalid": ["ghost"]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	res, err := c.Fetch(context.Background(), []string{"coins100", "ghost"})
	require.NoError(t, err)

	require.Len(t, res.Products, 1)
	p := res.Products[0]
	assert.Equal(t, "coins100", p.ID)
	assert.Equal(t, "100 Coins", p.Details.Title)
	assert.Equal(t, "A pile of coins", p.Details.Description)
	assert.True(t, decimal.RequireFromString("4.99").Equal(p.Details.Price))
	assert.Equal(t, "en_US", p.Details.Locale)

	assert.Equal(t, []string{"ghost"}, res.InvalidIDs)
}

func TestClient_Fetch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.Fetch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestClient_Fetch_BadPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"products": [{"id": "a", "price": "not-a-number"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.Fetch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse price")
}

func TestClient_Fetch_MissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"products": [{"title": "anonymous"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.Fetch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing id")
}

func TestClient_Fetch_Canceled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(srv.URL, nil)
	_, err := c.Fetch(ctx, []string{"a"})
	require.Error(t, err)
}

func TestClient_Fetch_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	res, err := c.Fetch(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Empty(t, res.Products)
	assert.Empty(t, res.InvalidIDs)
}
