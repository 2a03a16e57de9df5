package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/ruteri/collection-factory/api"
	"github.com/ruteri/collection-factory/interfaces"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("factory returned error %d: %s", e.StatusCode, e.Message)
}

// FactoryClient talks to the factory HTTP API on behalf of one predecessor account.
type FactoryClient struct {
	// ServerAddr is the base URL of the factory server
	ServerAddr string

	// Predecessor is sent as the requesting account of creation requests
	Predecessor interfaces.AccountID

	// Token is the predecessor's bearer token, sent with creation requests
	Token string

	// HTTPClient defaults to http.DefaultClient
	HTTPClient *http.Client
}

// CreateChild requests a child collection with the given attached deposit.
// With wait the server holds the response until the request is committed or refunded.
func (c *FactoryClient) CreateChild(ctx context.Context, req api.CreateChildRequest, deposit interfaces.Balance, wait bool) (*api.CreateChildResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	endpoint := c.ServerAddr + "/api/v1/children"
	if wait {
		endpoint += "?wait=true"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(api.PredecessorHeader, string(c.Predecessor))
	httpReq.Header.Set(api.AttachedDepositHeader, deposit.String())
	if c.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.Token)
	}

	var resp api.CreateChildResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChildExists asks whether a child id is committed in the factory registry.
func (c *FactoryClient) ChildExists(ctx context.Context, id interfaces.AccountID) (bool, error) {
	endpoint := fmt.Sprintf("%s/api/v1/children/%s/exists", c.ServerAddr, url.PathEscape(string(id)))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}

	var resp api.ExistsResponse
	if err := c.do(httpReq, &resp); err != nil {
		return false, err
	}
	return resp.Exists, nil
}

// Balance returns the runtime balance of an account.
func (c *FactoryClient) Balance(ctx context.Context, id interfaces.AccountID) (interfaces.Balance, error) {
	endpoint := fmt.Sprintf("%s/api/v1/accounts/%s/balance", c.ServerAddr, url.PathEscape(string(id)))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return interfaces.Balance{}, err
	}

	var resp api.BalanceResponse
	if err := c.do(httpReq, &resp); err != nil {
		return interfaces.Balance{}, err
	}
	return resp.Balance, nil
}

func (c *FactoryClient) do(req *http.Request, v any) error {
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("could not request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		var errResp api.ErrorResponse
		if json.Unmarshal(bodyBytes, &errResp) == nil && errResp.Error != "" {
			return &StatusError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: string(bodyBytes)}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("could not parse response: %w", err)
	}
	return nil
}
