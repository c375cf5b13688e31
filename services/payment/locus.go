// Package payment provides the funds-transfer collaborator: a client for the
// Locus MCP payment endpoint used to send USDC refunds to wallet addresses.
//
// Payment is at-most-once by design. The client never retries a transfer on
// its own; a timeout or upstream cancellation after the request was issued
// must not be interpreted as a signal to try again.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultOAuthURL = "https://auth.paywithlocus.com/oauth2/token"
	oauthScope      = "payment_context:read contact_payments:write address_payments:write email_payments:write"
)

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      int            `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result map[string]any `json:"result"`
	Error  *rpcError      `json:"error"`
}

// Config carries the Locus credentials. Either APIKey or the client
// id/secret pair must be set; APIKey wins when both are present.
type Config struct {
	MCPURL       string
	APIKey       string
	ClientID     string
	ClientSecret string
	// OAuthURL overrides the token endpoint, for tests.
	OAuthURL string
}

// LocusClient sends refunds through the Locus MCP endpoint.
type LocusClient struct {
	httpClient *http.Client
	cfg        Config
}

// NewLocusClient validates the config and returns a ready client.
func NewLocusClient(cfg Config) (*LocusClient, error) {
	if cfg.MCPURL == "" {
		return nil, fmt.Errorf("locus MCP URL is missing")
	}
	if cfg.APIKey == "" && (cfg.ClientID == "" || cfg.ClientSecret == "") {
		return nil, fmt.Errorf("locus credentials are missing: set an API key or a client id/secret pair")
	}
	if cfg.OAuthURL == "" {
		cfg.OAuthURL = defaultOAuthURL
	}
	return &LocusClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cfg:        cfg,
	}, nil
}

// SendRefund sends a USDC refund to a wallet address, with the original
// transaction id carried in the memo. Returns the MCP result object.
func (c *LocusClient) SendRefund(ctx context.Context, address string, amount float64, transactionID string) (map[string]any, error) {
	slog.Info("Sending refund", "amount", amount, "address", address, "transactionId", transactionID)

	result, err := c.callMCP(ctx, "tools/call", map[string]any{
		"name": "send_to_address",
		"arguments": map[string]any{
			"address": address,
			"amount":  amount,
			"memo":    fmt.Sprintf("Refund for dispute - Transaction: %s", transactionID),
		},
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Refund sent successfully", "transactionId", transactionID)
	return result, nil
}

// accessToken returns a bearer token: the static API key when configured,
// otherwise a fresh OAuth client-credentials token.
func (c *LocusClient) accessToken(ctx context.Context) (string, error) {
	if c.cfg.APIKey != "" {
		return c.cfg.APIKey, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("scope", oauthScope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OAuthURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access_token")
	}
	return tok.AccessToken, nil
}

// callMCP performs one JSON-RPC call against the Locus MCP endpoint. The
// endpoint may answer either plain JSON or an SSE stream; for streams the
// first "data:" line carries the response envelope.
func (c *LocusClient) callMCP(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal MCP request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.MCPURL, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("MCP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read MCP response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("MCP endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	envelope, err := parseEnvelope(body)
	if err != nil {
		return nil, err
	}
	if envelope.Error != nil {
		msg := envelope.Error.Message
		if msg == "" {
			msg = "MCP error"
		}
		return nil, fmt.Errorf("MCP call failed: %s", msg)
	}
	return envelope.Result, nil
}

// parseEnvelope decodes either a plain JSON-RPC body or the first data line
// of an SSE stream.
func parseEnvelope(body []byte) (*rpcResponse, error) {
	raw := body
	for _, line := range strings.Split(string(body), "\n") {
		if strings.HasPrefix(line, "data: ") {
			raw = []byte(strings.TrimPrefix(line, "data: "))
			break
		}
	}

	var envelope rpcResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse MCP response: %w", err)
	}
	return &envelope, nil
}
