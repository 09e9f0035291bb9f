package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ajoure/reconcile/internal/config"
	"github.com/ajoure/reconcile/internal/reconciliation/discrepancy"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Client resolves payment uids against the provider API. Several lookup
// endpoints may know about a transaction (payments, refunds, archived); they
// are tried in order until one answers.
type Client struct {
	name      string
	apiKey    string
	endpoints []string
	client    *http.Client
	log       *zap.Logger
}

type lookupResponse struct {
	Found  bool   `json:"found"`
	Amount string `json:"amount"`
}

var ErrNoEndpoints = errors.New("no lookup endpoints configured")

func NewClient(cfg config.Config, log *zap.Logger) *Client {
	timeout := time.Duration(cfg.Provider.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &Client{
		name:      cfg.Provider.Name,
		apiKey:    cfg.Provider.APIKey,
		endpoints: cfg.Provider.Endpoints,
		client:    &http.Client{Timeout: timeout},
		log:       log.Named("provider.lookup"),
	}
}

func (c *Client) Name() string { return c.name }

// Lookup tries each configured endpoint in order. A per-uid miss is not an
// error: the result records every endpoint tried and the last HTTP status so
// the caller can report it instead of silently dropping the row.
func (c *Client) Lookup(ctx context.Context, uid string) (discrepancy.LookupResult, error) {
	res := discrepancy.LookupResult{}
	if len(c.endpoints) == 0 {
		return res, ErrNoEndpoints
	}

	for _, endpoint := range c.endpoints {
		res.EndpointsTried = append(res.EndpointsTried, endpoint)

		status, body, err := c.get(ctx, endpoint, uid)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			c.log.Warn("lookup endpoint unreachable",
				zap.String("endpoint", endpoint),
				zap.String("uid", uid),
				zap.Error(err))
			continue
		}
		res.LastHTTPStatus = status

		if status == http.StatusNotFound {
			continue
		}
		if status != http.StatusOK {
			c.log.Warn("lookup endpoint returned unexpected status",
				zap.String("endpoint", endpoint),
				zap.String("uid", uid),
				zap.Int("status", status))
			continue
		}

		var payload lookupResponse
		if err := json.Unmarshal(body, &payload); err != nil {
			c.log.Warn("lookup response unparsable",
				zap.String("endpoint", endpoint),
				zap.String("uid", uid),
				zap.Error(err))
			continue
		}
		if !payload.Found {
			continue
		}

		amount, err := decimal.NewFromString(payload.Amount)
		if err != nil {
			return res, fmt.Errorf("parse lookup amount for %s: %w", uid, err)
		}
		res.Found = true
		res.Amount = amount
		return res, nil
	}

	return res, nil
}

func (c *Client) get(ctx context.Context, endpoint, uid string) (int, []byte, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return 0, nil, err
	}
	q := u.Query()
	q.Set("transaction_id", uid)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.apiKey))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}

	return resp.StatusCode, body, nil
}

var Module = fx.Module("provider",
	fx.Provide(NewClient),
	fx.Provide(func(c *Client) discrepancy.ProviderLookup { return c }),
)
