// Package explorer is a client for the Subscan-compatible block explorer API.
package explorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/ratelimit"

	"publishScope/internal/model"
)

// ErrRejected is returned when the explorer answers with a non-zero code.
// It is final for the request: retrying will not change the answer.
var ErrRejected = errors.New("explorer rejected request")

// ErrUnauthorized is returned for HTTP 401 and 403, usually a bad API key.
var ErrUnauthorized = errors.New("explorer unauthorized")

const (
	pathTransaction    = "/api/scan/evm/transaction"
	pathTokenHolders   = "/api/scan/evm/token/holders"
	pathERC20Transfers = "/api/scan/evm/erc20/transfer"
)

// Metrics observes explorer requests.
type Metrics interface {
	ObserveRequest(endpoint string, err error, started time.Time)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RPS        int
	HTTPClient *http.Client
	Metrics    Metrics
}

// Client talks to the explorer REST API.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	hc      *http.Client
	rl      ratelimit.Limiter
	metrics Metrics
}

// NewClient builds a Client.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, fmt.Errorf("explorer base url is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	rl := ratelimit.NewUnlimited()
	if opts.RPS > 0 {
		rl = ratelimit.New(opts.RPS)
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		timeout: opts.Timeout,
		hc:      hc,
		rl:      rl,
		metrics: opts.Metrics,
	}, nil
}

// Endpoint returns the base URL the client talks to.
func (c *Client) Endpoint() string {
	return c.baseURL
}

type envelope struct {
	Code        int             `json:"code"`
	Message     string          `json:"message"`
	GeneratedAt int64           `json:"generated_at"`
	Data        json.RawMessage `json:"data"`
}

type transactionData struct {
	Hash     string `json:"hash"`
	From     string `json:"from"`
	CreateAt int64  `json:"create_at"`
	To       struct {
		Address string `json:"address"`
	} `json:"to"`
}

// Transaction resolves sender, receiver and status of a transaction hash.
func (c *Client) Transaction(ctx context.Context, hash string) (model.Enrichment, error) {
	env, err := c.post(ctx, pathTransaction, map[string]interface{}{"hash": hash})
	if err != nil {
		return model.Enrichment{}, err
	}

	var data transactionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return model.Enrichment{}, fmt.Errorf("%w: decode transaction %s: %v", model.ErrUpstreamUnavailable, hash, err)
	}

	ts := data.CreateAt
	if ts == 0 {
		ts = env.GeneratedAt
	}
	txHash := data.Hash
	if txHash == "" {
		txHash = hash
	}

	return model.Enrichment{
		Message:   env.Message,
		Timestamp: ts,
		TxHash:    model.NormalizeHash(txHash),
		From:      data.From,
		To:        data.To.Address,
	}, nil
}

type holdersData struct {
	Count int `json:"count"`
	List  []struct {
		Holder string `json:"holder"`
	} `json:"list"`
}

// TokenHolders lists holder addresses of a token contract.
func (c *Client) TokenHolders(ctx context.Context, contract string, page, row int) ([]string, error) {
	env, err := c.post(ctx, pathTokenHolders, map[string]interface{}{
		"contract": contract,
		"row":      row,
		"page":     page,
	})
	if err != nil {
		return nil, err
	}

	var data holdersData
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("%w: decode holders: %v", model.ErrUpstreamUnavailable, err)
		}
	}

	holders := make([]string, 0, len(data.List))
	for _, item := range data.List {
		if item.Holder != "" {
			holders = append(holders, item.Holder)
		}
	}
	return holders, nil
}

type transfersData struct {
	Count int            `json:"count"`
	List  []transferItem `json:"list"`
}

type transferItem struct {
	Hash     string     `json:"hash"`
	CreateAt int64      `json:"create_at"`
	From     string     `json:"from"`
	To       string     `json:"to"`
	Value    flexString `json:"value"`
	Symbol   string     `json:"symbol"`
	Contract string     `json:"contract"`
	Decimals int        `json:"decimals"`
}

// flexString accepts both JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var out string
		if err := json.Unmarshal(b, &out); err != nil {
			return err
		}
		*f = flexString(out)
		return nil
	}
	*f = flexString(s)
	return nil
}

// ERC20Transfers returns one page of ERC-20 transfers for an address.
func (c *Client) ERC20Transfers(ctx context.Context, address string, page, row int) ([]model.Transfer, error) {
	env, err := c.post(ctx, pathERC20Transfers, map[string]interface{}{
		"address": address,
		"row":     row,
		"page":    page,
	})
	if err != nil {
		return nil, err
	}

	var data transfersData
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("%w: decode transfers: %v", model.ErrUpstreamUnavailable, err)
		}
	}

	transfers := make([]model.Transfer, 0, len(data.List))
	for _, item := range data.List {
		transfers = append(transfers, model.Transfer{
			Hash:     item.Hash,
			CreateAt: item.CreateAt,
			From:     item.From,
			To:       item.To,
			Value:    string(item.Value),
			Symbol:   item.Symbol,
			Contract: item.Contract,
			Decimals: item.Decimals,
		})
	}
	return transfers, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (env envelope, err error) {
	started := time.Now()
	if c.metrics != nil {
		defer func() { c.metrics.ObserveRequest(path, err, started) }()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return envelope{}, fmt.Errorf("marshal request: %w", err)
	}

	c.rl.Take()
	if err := ctx.Err(); err != nil {
		return envelope{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return envelope{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return envelope{}, fmt.Errorf("%w: %s: %v", model.ErrUpstreamUnavailable, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return envelope{}, fmt.Errorf("%w: read %s: %v", model.ErrUpstreamUnavailable, path, err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return envelope{}, fmt.Errorf("%w: %s: http status %d", ErrUnauthorized, path, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return envelope{}, fmt.Errorf("%w: %s: http status %d", model.ErrUpstreamUnavailable, path, resp.StatusCode)
	}

	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, fmt.Errorf("%w: decode %s: %v", model.ErrUpstreamUnavailable, path, err)
	}
	if env.Code != 0 {
		return env, fmt.Errorf("%w: %s: code %d: %s", ErrRejected, path, env.Code, env.Message)
	}
	return env, nil
}
