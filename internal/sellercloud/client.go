package sellercloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/po-tool/internal/config"
	"github.com/andresuchdata/po-tool/internal/retry"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// PriorityCritical is the highest queued job priority.
const PriorityCritical = 3

// APIError is a non-2xx response.
type APIError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sellercloud %s %s returned %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Body)
}

func (e *APIError) transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client calls the order management REST API with a cached bearer token.
type Client struct {
	baseURL string
	http    *http.Client
	policy  retry.Policy
}

// NewClient builds a client whose token is fetched lazily and reused until it expires.
func NewClient(ctx context.Context, cfg config.SellercloudConfig) *Client {
	return newClient(ctx, cfg, &http.Client{Timeout: time.Minute})
}

func newClient(ctx context.Context, cfg config.SellercloudConfig, base *http.Client) *Client {
	baseURL := cfg.BaseURL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	ts := oauth2.ReuseTokenSource(nil, &passwordTokenSource{
		ctx:      ctx,
		url:      baseURL + "token",
		username: cfg.Username,
		password: cfg.Password,
		http:     base,
	})
	httpClient := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), ts)
	httpClient.Timeout = base.Timeout
	return &Client{baseURL: baseURL, http: httpClient, policy: retry.Exponential(3)}
}

// WithPolicy overrides the per-call retry policy.
func (c *Client) WithPolicy(p retry.Policy) *Client {
	c.policy = p
	return c
}

// call sends body as JSON and decodes the response into out when out is non-nil.
// Rate limits and server errors are retried.
func (c *Client) call(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	return retry.Do(ctx, c.policy, func(ctx context.Context, attempt int) error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
		if err != nil {
			return retry.Permanent(err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			log.Warn().Err(err).Str("endpoint", endpoint).Int("attempt", attempt).Msg("sellercloud request failed")
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			apiErr := &APIError{Method: method, Endpoint: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
			if apiErr.transient() {
				return apiErr
			}
			return retry.Permanent(apiErr)
		}
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return retry.Permanent(fmt.Errorf("sellercloud %s %s: %w", method, endpoint, err))
		}
		return nil
	})
}

// ExistingProducts returns the IDs of the given SKUs that exist in the catalog,
// walking every result page.
func (c *Client) ExistingProducts(ctx context.Context, skus []string) ([]string, error) {
	if len(skus) == 0 {
		return nil, nil
	}
	var found []string
	for page := 1; ; page++ {
		q := url.Values{"model.sKU": {strings.Join(skus, ",")}}
		if page > 1 {
			q.Set("model.pageNumber", strconv.Itoa(page))
		}
		var resp struct {
			Items []struct {
				ID string `json:"ID"`
			} `json:"Items"`
			TotalResults int `json:"TotalResults"`
		}
		if err := c.call(ctx, http.MethodGet, "Catalog?"+q.Encode(), nil, &resp); err != nil {
			return nil, err
		}
		for _, item := range resp.Items {
			found = append(found, item.ID)
		}
		if len(resp.Items) == 0 || len(found) >= resp.TotalResults {
			return found, nil
		}
	}
}

// ImportProducts queues a catalog import and returns its job ID.
func (c *Client) ImportProducts(ctx context.Context, products []CreateProduct) (int64, error) {
	var resp struct {
		JobID int64 `json:"JobID"`
	}
	if err := c.call(ctx, http.MethodPost, "Products/Import", map[string]interface{}{"Products": products}, &resp); err != nil {
		return 0, err
	}
	if resp.JobID == 0 {
		return 0, fmt.Errorf("catalog import returned no job id")
	}
	return resp.JobID, nil
}

// SetJobPriority moves a queued job to the given priority.
func (c *Client) SetJobPriority(ctx context.Context, jobID int64, priority int) error {
	return c.call(ctx, http.MethodPut, "QueuedJobs/Priority", map[string]interface{}{"ID": jobID, "Priority": priority}, nil)
}

// JobStatus returns the status code of a queued job.
func (c *Client) JobStatus(ctx context.Context, jobID int64) (JobStatus, error) {
	var resp struct {
		Status JobStatus `json:"Status"`
	}
	if err := c.call(ctx, http.MethodGet, "QueuedJobs/"+strconv.FormatInt(jobID, 10), nil, &resp); err != nil {
		return 0, err
	}
	return resp.Status, nil
}

// CreatePurchaseOrder creates an order and returns its ID.
func (c *Client) CreatePurchaseOrder(ctx context.Context, in NewPurchaseOrder) (int64, error) {
	var resp struct {
		ID *int64 `json:"Id"`
	}
	if err := c.call(ctx, http.MethodPost, "PurchaseOrders", in, &resp); err != nil {
		return 0, err
	}
	if resp.ID == nil {
		return 0, fmt.Errorf("could not retrieve purchase order id")
	}
	return *resp.ID, nil
}

// AddItems appends products to an existing order.
func (c *Client) AddItems(ctx context.Context, poID int64, products []POProduct) error {
	return c.call(ctx, http.MethodPost, fmt.Sprintf("PurchaseOrders/%d/items", poID), products, nil)
}

// Receive marks quantities of an order as received.
func (c *Client) Receive(ctx context.Context, poID int64, items []ReceiveItem) error {
	return c.call(ctx, http.MethodPost, fmt.Sprintf("PurchaseOrders/%d/receive", poID), map[string]interface{}{"Items": items}, nil)
}
