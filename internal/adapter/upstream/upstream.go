// Package upstream implements the gateway's only outbound dependency
// on the QRIS credit provider: fetching the list of recent credits for
// a principal so the invoice service can match a final amount.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"qris-gateway/internal/core/ports"

	"github.com/rs/zerolog"
)

// maxResponseBytes caps how much of the upstream response body is read,
// guarding against a misbehaving or malicious upstream.
const maxResponseBytes = 1 << 20

// Config holds the upstream provider's connection details.
type Config struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	Timeout    time.Duration
	BearerMode bool // when true, the caller-supplied token is sent as a Bearer token
}

type httpUpstreamAdapter struct {
	cfg        Config
	httpClient *http.Client
	tokenSvc   ports.TokenService
	log        zerolog.Logger
}

// NewHTTPUpstreamAdapter builds the HTTP-based upstream adapter (C8).
// tokenSvc may be nil; it is only consulted when cfg.BearerMode is set,
// to verify a caller-supplied bearer assertion before it is forwarded
// upstream instead of trusting it blindly.
func NewHTTPUpstreamAdapter(cfg Config, httpClient *http.Client, tokenSvc ports.TokenService, log zerolog.Logger) ports.UpstreamAdapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &httpUpstreamAdapter{cfg: cfg, httpClient: httpClient, tokenSvc: tokenSvc, log: log}
}

type creditsResponse struct {
	Success bool        `json:"success"`
	Credits []creditDTO `json:"credits"`
	Error   string      `json:"error,omitempty"`
}

type creditDTO struct {
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

func (a *httpUpstreamAdapter) FetchCredits(ctx context.Context, principal, token string) ([]ports.UpstreamCredit, error) {
	endpoint := fmt.Sprintf("%s/credits?principal=%s", a.cfg.BaseURL, url.QueryEscape(principal))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}
	req.Header.Set("X-API-Key", a.cfg.APIKey)
	req.Header.Set("X-API-Secret", a.cfg.APISecret)
	if token != "" {
		if a.cfg.BearerMode {
			if a.tokenSvc != nil {
				if _, err := a.tokenSvc.Validate(token); err != nil {
					return nil, fmt.Errorf("upstream bearer token rejected: %w", err)
				}
			}
			req.Header.Set("Authorization", "Bearer "+token)
		} else {
			req.Header.Set("X-Upstream-Token", token)
		}
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream fetch_credits request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading upstream response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		a.log.Warn().Int("status", resp.StatusCode).Str("principal", principal).Msg("upstream adapter: non-200 response")
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	var parsed creditsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing upstream response: %w", err)
	}
	if !parsed.Success {
		errMsg := parsed.Error
		if errMsg == "" {
			errMsg = "unknown upstream error"
		}
		return nil, fmt.Errorf("upstream error: %s", errMsg)
	}

	credits := make([]ports.UpstreamCredit, 0, len(parsed.Credits))
	for _, c := range parsed.Credits {
		credits = append(credits, ports.UpstreamCredit{Amount: c.Amount, Status: c.Status})
	}
	return credits, nil
}
