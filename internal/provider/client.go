// Package provider is the HTTP client for the upstream financial data
// service. Each session's raw bank, mutual fund and stock payloads are
// fetched as opaque JSON; normalization happens downstream.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	requestTimeout = 30 * time.Second
	connectTimeout = 10 * time.Second

	bankEndpoint  = "bank_transactions"
	mfEndpoint    = "mf_transactions"
	stockEndpoint = "stock_transactions"
)

// ErrUnauthorized means the provider rejected the session cookie. It is
// the only fetch failure that aborts a snapshot; anything else degrades
// to an empty payload.
var ErrUnauthorized = errors.New("provider rejected session")

// Snapshot holds the raw payloads of one full fetch. A source that
// failed to fetch is present as an empty slice.
type Snapshot struct {
	Bank       []byte
	MutualFund []byte
	Stock      []byte
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func New(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
		logger: logger,
	}
}

// FetchAll fetches the three transaction sources concurrently. A
// rejected session fails the whole snapshot; any other per-source
// failure is logged and leaves that source empty.
func (c *Client) FetchAll(ctx context.Context, sessionID string) (Snapshot, error) {
	var snap Snapshot

	g, ctx := errgroup.WithContext(ctx)
	fetchInto := func(endpoint string, dst *[]byte) func() error {
		return func() error {
			data, err := c.fetch(ctx, sessionID, endpoint)
			if errors.Is(err, ErrUnauthorized) {
				return err
			}
			if err != nil {
				c.logger.WarnContext(ctx, "provider fetch degraded",
					"endpoint", endpoint,
					"error", err,
				)
				return nil
			}
			*dst = data
			return nil
		}
	}
	g.Go(fetchInto(bankEndpoint, &snap.Bank))
	g.Go(fetchInto(mfEndpoint, &snap.MutualFund))
	g.Go(fetchInto(stockEndpoint, &snap.Stock))

	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// FetchBank fetches only the bank source, used by views that don't
// need the full snapshot.
func (c *Client) FetchBank(ctx context.Context, sessionID string) ([]byte, error) {
	return c.fetch(ctx, sessionID, bankEndpoint)
}

func (c *Client) fetch(ctx context.Context, sessionID, endpoint string) ([]byte, error) {
	url := fmt.Sprintf("%s/api/%s", c.baseURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", endpoint, err)
	}
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: sessionID})

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetching %s: unexpected status %d", endpoint, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", endpoint, err)
	}
	return data, nil
}
