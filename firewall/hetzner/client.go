// Package hetzner implements the firewall Provider interface on top of the
// Hetzner Cloud firewalls API.
package hetzner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	aerrors "github.com/botsarefuture/hetzner-firewall/app/errors"
	"github.com/botsarefuture/hetzner-firewall/firewall/types"
)

// DefaultBaseURL is the production Hetzner Cloud API endpoint.
const DefaultBaseURL = "https://api.hetzner.cloud/v1"

// maxErrBody caps how much of an error response body is attached to errors.
const maxErrBody = 1024

// Client talks to one firewall resource of the Hetzner Cloud API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	firewallID string
	logger     *slog.Logger
}

var _ types.Provider = (*Client)(nil)

// New returns a new Client bound to the given firewall resource.
func New(baseURL, token, firewallID string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		firewallID: firewallID,
		logger:     logger.With("component", "hetzner", "firewall_id", firewallID),
	}
}

type firewallResponse struct {
	Firewall struct {
		Rules types.RuleSet `json:"rules"`
	} `json:"firewall"`
}

type setRulesRequest struct {
	Rules types.RuleSet `json:"rules"`
}

// Rules fetches the current rule set of the firewall resource.
func (c *Client) Rules(ctx context.Context) (types.RuleSet, error) {
	url := fmt.Sprintf("%s/firewalls/%s", c.baseURL, c.firewallID)
	errFields := []any{"url", url, "method", http.MethodGet}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, aerrors.Wrap(aerrors.KindNetwork, "failed creating request", err, errFields...)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, aerrors.Wrap(aerrors.KindNetwork, "failed fetching firewall rules", err, errFields...)
	}
	defer resp.Body.Close() //nolint:errcheck // Read-only response body.

	if err = checkStatus(resp, errFields); err != nil {
		return nil, err
	}

	var respData firewallResponse
	if err = json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, aerrors.Wrap(aerrors.KindAPI, "failed decoding firewall response", err, errFields...)
	}

	c.logger.Debug("fetched firewall rules", "rules", len(respData.Firewall.Rules))

	return respData.Firewall.Rules, nil
}

// SetRules replaces the entire rule set of the firewall resource.
func (c *Client) SetRules(ctx context.Context, rules types.RuleSet) error {
	url := fmt.Sprintf("%s/firewalls/%s/actions/set_rules", c.baseURL, c.firewallID)
	errFields := []any{"url", url, "method", http.MethodPost}

	// The rules key must always be present, even for an empty set.
	if rules == nil {
		rules = types.RuleSet{}
	}
	reqJSON, err := json.Marshal(setRulesRequest{Rules: rules})
	if err != nil {
		return aerrors.Wrap(aerrors.KindAPI, "failed marshalling rules", err, errFields...)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqJSON))
	if err != nil {
		return aerrors.Wrap(aerrors.KindNetwork, "failed creating request", err, errFields...)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return aerrors.Wrap(aerrors.KindNetwork, "failed replacing firewall rules", err, errFields...)
	}
	defer resp.Body.Close() //nolint:errcheck // Drained by checkStatus on error only.

	if err = checkStatus(resp, errFields); err != nil {
		return err
	}

	c.logger.Debug("replaced firewall rules", "rules", len(rules))

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
}

func checkStatus(resp *http.Response, errFields []any) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
	errFields = append(errFields,
		"status_code", resp.StatusCode,
		"status", resp.Status,
		"body", strings.TrimSpace(string(body)),
	)

	return aerrors.New(aerrors.KindAPI, "firewall API request failed", errFields...)
}
