package lightspeed

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/po-tool/internal/config"
)

// Result is the outcome of an import call. A completed import maps each custom
// SKU to the POS system ID; an incomplete one carries the script logs, which may
// name a background job to poll.
type Result struct {
	Completed bool
	SystemIDs map[string]string
	Logs      []string
}

var jobIDPattern = regexp.MustCompile(`Job ID\D*(\d+)`)

// JobID returns the background job named in the logs, if any.
func (r *Result) JobID() (int, bool) {
	for _, l := range r.Logs {
		if m := jobIDPattern.FindStringSubmatch(l); m != nil {
			id, err := strconv.Atoi(m[1])
			if err == nil {
				return id, true
			}
		}
	}
	return 0, false
}

// Client talks to the POS import bridge.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

func NewClient(cfg config.LightspeedConfig) *Client {
	return &Client{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		http:     &http.Client{Timeout: 5 * time.Minute},
	}
}

// WithHTTPClient swaps the transport, mainly for tests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// Import uploads an xlsx product file.
func (c *Client) Import(ctx context.Context, file []byte) (*Result, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="file"; filename="products.xlsx"`},
		"Content-Type":        {ContentType},
	})
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(file); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("import", nil), &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req)
}

// ImportResult fetches the outcome of a background import job.
func (c *Client) ImportResult(ctx context.Context, jobID int) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("importresult/", url.Values{"jobId": {strconv.Itoa(jobID)}}), nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) endpoint(path string, extra url.Values) string {
	q := url.Values{"username": {c.username}, "password": {c.password}}
	for k, v := range extra {
		q[k] = v
	}
	return c.baseURL + "/" + path + "?" + q.Encode()
}

func (c *Client) do(req *http.Request) (*Result, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		var payload struct {
			ScriptLogs []string `json:"scriptlogs"`
		}
		if err := json.Unmarshal(data, &payload); err != nil || len(payload.ScriptLogs) == 0 {
			return nil, fmt.Errorf("lightspeed returned %d without script logs", resp.StatusCode)
		}
		return &Result{Logs: payload.ScriptLogs}, nil
	}

	ids, err := parseSystemIDs(data)
	if err != nil {
		return nil, err
	}
	return &Result{Completed: true, SystemIDs: ids}, nil
}

func parseSystemIDs(data []byte) (map[string]string, error) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse import results: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("import results are empty")
	}

	idCol, skuCol := -1, -1
	for i, h := range records[0] {
		switch strings.TrimSpace(h) {
		case "System ID":
			idCol = i
		case "Custom SKU":
			skuCol = i
		}
	}
	if idCol < 0 || skuCol < 0 {
		return nil, fmt.Errorf("import results are missing System ID or Custom SKU")
	}

	out := make(map[string]string, len(records)-1)
	for _, rec := range records[1:] {
		if idCol >= len(rec) || skuCol >= len(rec) {
			continue
		}
		sku := strings.TrimSpace(rec[skuCol])
		if sku != "" {
			out[sku] = strings.TrimSpace(rec[idCol])
		}
	}
	return out, nil
}
