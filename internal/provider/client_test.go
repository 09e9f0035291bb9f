package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ajoure/reconcile/internal/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, endpoints []string) *Client {
	t.Helper()
	return NewClient(config.Config{
		Provider: config.ProviderConfig{
			Name:           "cloudpayments",
			APIKey:         "test-key",
			Endpoints:      endpoints,
			TimeoutSeconds: 5,
		},
	}, zaptest.NewLogger(t))
}

func TestLookupFirstEndpointHit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "t-1", r.URL.Query().Get("transaction_id"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"found":true,"amount":"10.50"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, []string{srv.URL})

	res, err := c.Lookup(context.Background(), "t-1")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.True(t, res.Amount.Equal(decimal.RequireFromString("10.50")))
	assert.Equal(t, []string{srv.URL}, res.EndpointsTried)
	assert.Equal(t, http.StatusOK, res.LastHTTPStatus)
}

func TestLookupFallsThroughEndpoints(t *testing.T) {
	miss := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer miss.Close()

	hit := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"found":true,"amount":"99.00"}`))
	}))
	defer hit.Close()

	c := newTestClient(t, []string{miss.URL, hit.URL})

	res, err := c.Lookup(context.Background(), "t-2")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, []string{miss.URL, hit.URL}, res.EndpointsTried)
	assert.Equal(t, http.StatusOK, res.LastHTTPStatus)
}

func TestLookupMissRecordsTrail(t *testing.T) {
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer first.Close()

	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"found":false}`))
	}))
	defer second.Close()

	c := newTestClient(t, []string{first.URL, second.URL})

	res, err := c.Lookup(context.Background(), "t-3")
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, []string{first.URL, second.URL}, res.EndpointsTried)
	assert.Equal(t, http.StatusOK, res.LastHTTPStatus)
}

func TestLookupSkipsUnreachableEndpoint(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	dead.Close()

	hit := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"found":true,"amount":"1.00"}`))
	}))
	defer hit.Close()

	c := newTestClient(t, []string{dead.URL, hit.URL})

	res, err := c.Lookup(context.Background(), "t-4")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Len(t, res.EndpointsTried, 2)
}

func TestLookupNoEndpoints(t *testing.T) {
	c := newTestClient(t, nil)

	_, err := c.Lookup(context.Background(), "t-5")
	assert.ErrorIs(t, err, ErrNoEndpoints)
}

func TestLookupCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"found":true,"amount":"1.00"}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(t, []string{srv.URL})
	_, err := c.Lookup(ctx, "t-6")
	assert.ErrorIs(t, err, context.Canceled)
}
