package nmkr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient talks to the NMKR Studio REST API.
type HTTPClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

type HTTPClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("nmkr base url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("nmkr api key is required")
	}
	return &HTTPClient{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
	}, nil
}

func (c *HTTPClient) CreateProject(ctx context.Context, req CreateProjectRequest) (*ProjectResponse, error) {
	raw, err := c.post(ctx, "/v2/CreateProject", req, false)
	if err != nil {
		return nil, err
	}
	var out ProjectResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode create project response: %w", err)
	}
	out.Raw = raw
	return &out, nil
}

func (c *HTTPClient) UploadNft(ctx context.Context, projectUID string, req UploadNftRequest) (*UploadNftResponse, error) {
	if strings.TrimSpace(projectUID) == "" {
		return nil, fmt.Errorf("project uid is required")
	}
	raw, err := c.post(ctx, "/v2/UploadNft/"+url.PathEscape(projectUID), req, true)
	if err != nil {
		return nil, err
	}
	var out UploadNftResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode upload nft response: %w", err)
	}
	out.Raw = raw
	return &out, nil
}

func (c *HTTPClient) CreatePaymentTransaction(ctx context.Context, req PaymentTransactionRequest) (*PaymentTransactionResponse, error) {
	raw, err := c.post(ctx, "/v2/CreatePaymentTransaction", req, false)
	if err != nil {
		return nil, err
	}
	var out PaymentTransactionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode payment transaction response: %w", err)
	}
	out.Raw = raw
	return &out, nil
}

// post sends payload as JSON and returns the raw 2xx body.
func (c *HTTPClient) post(ctx context.Context, path string, payload any, acceptText bool) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if acceptText {
		req.Header.Set("Accept", "text/plain")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		log.Printf("[nmkr] POST %s FAILED err=%v elapsed=%s", path, err, time.Since(start))
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	log.Printf("[nmkr] POST %s status=%d len=%d elapsed=%s", path, resp.StatusCode, len(respBody), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if !json.Valid(respBody) {
		return nil, fmt.Errorf("%s returned non-JSON body: %s", path, string(respBody))
	}
	return respBody, nil
}
