// Package advisor calls the external restock suggestion generator. The
// generator is an opaque collaborator: it receives plain-text summaries of
// recent sales and current stock and returns free-form suggestion text. No
// assumption is made about how it produces its answer.
package advisor

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
)

// ErrDisabled is returned when no advisor endpoint is configured.
var ErrDisabled = errors.New("restock advisor is not configured")

type Request struct {
	SalesData          string `json:"sales_data"`
	CurrentStockLevels string `json:"current_stock_levels"`
	LeadTimeDays       int    `json:"lead_time_days"`
}

type Response struct {
	RestockSuggestions string `json:"restock_suggestions"`
}

type Client interface {
	Suggest(ctx context.Context, req Request) (Response, error)
}

type HTTPClient struct {
	endpoint string
	client   *http.Client
}

func NewHTTPClient(endpoint string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Suggest(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.SalesData) == "" || strings.TrimSpace(req.CurrentStockLevels) == "" {
		return Response{}, errors.New("sales and stock summaries must not be empty")
	}
	if req.LeadTimeDays < 0 {
		return Response{}, errors.New("lead time must not be negative")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("call restock advisor: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		limited, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return Response{}, fmt.Errorf("restock advisor returned %d: %s", httpResp.StatusCode, strings.TrimSpace(string(limited)))
	}

	var resp Response
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, 1<<20)).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("decode restock advisor response: %w", err)
	}
	if strings.TrimSpace(resp.RestockSuggestions) == "" {
		return Response{}, errors.New("restock advisor returned an empty suggestion")
	}
	return resp, nil
}

// Disabled satisfies Client when no endpoint is configured.
type Disabled struct{}

func (Disabled) Suggest(ctx context.Context, req Request) (Response, error) {
	return Response{}, ErrDisabled
}
