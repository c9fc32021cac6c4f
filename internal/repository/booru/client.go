// Package booru implements the HTTP client for the localbooru search API.
package booru

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/null-order/localbooru-sub000/internal/domain/booru"
	"github.com/null-order/localbooru-sub000/internal/metrics"
)

// Client talks to a running localbooru server.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *zap.Logger
}

// Config holds client connection settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// NewClient creates a search-service client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("booru: base URL is required")
	}
	httpc := cfg.HTTPClient
	if httpc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpc = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpc:   httpc,
		logger:  logger,
	}, nil
}

// StatusError is a non-success HTTP outcome. It is surfaced to the caller as
// a status string and never corrupts session state.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("booru: %s returned %d: %s", e.Endpoint, e.Code, e.Body)
	}
	return fmt.Sprintf("booru: %s returned %d", e.Endpoint, e.Code)
}

// wire mirrors of the service's JSON payloads.

type imageRow struct {
	booru.Result
	Tags []booru.Tag `json:"tags"`
}

type imagesResponse struct {
	Images []imageRow         `json:"images"`
	Total  int                `json:"total"`
	Facets []booru.FacetEntry `json:"facets"`
}

type clipResponse struct {
	Results []imageRow         `json:"results"`
	Total   int                `json:"total"`
	Offset  int                `json:"offset"`
	Limit   int                `json:"limit"`
	Facets  []booru.FacetEntry `json:"facets"`
	Vector  string             `json:"vector"` // file probes only, base64 float32
}

type clipRequestBody struct {
	Query          string   `json:"query,omitempty"`
	PositiveImages []int    `json:"positive_images,omitempty"`
	NegativeImages []int    `json:"negative_images,omitempty"`
	PositiveVector string   `json:"positive_vector,omitempty"`
	TagQuery       string   `json:"tag_query,omitempty"`
	Limit          int      `json:"limit"`
	Offset         int      `json:"offset"`
	IncludeTags    bool     `json:"include_tags"`
}

// ListImages runs one page of the tag-filtered listing.
func (c *Client) ListImages(ctx context.Context, query string, offset, limit int) (booru.Page, error) {
	vals := url.Values{}
	vals.Set("q", query)
	vals.Set("offset", strconv.Itoa(offset))
	vals.Set("limit", strconv.Itoa(limit))

	var resp imagesResponse
	if err := c.getJSON(ctx, "/api/images", vals, &resp); err != nil {
		return booru.Page{}, err
	}

	page := booru.Page{
		Total:    resp.Total,
		Facets:   resp.Facets,
		TagsByID: make(map[int][]booru.Tag, len(resp.Images)),
	}
	for _, row := range resp.Images {
		page.Images = append(page.Images, row.Result)
		page.TagsByID[row.ID] = row.Tags
	}
	return page, nil
}

// ClipSearch runs one page of a semantic probe.
func (c *Client) ClipSearch(ctx context.Context, q booru.ClipQuery) (booru.ClipPage, error) {
	body := clipRequestBody{
		Query:          q.Query,
		PositiveImages: q.PositiveImages,
		NegativeImages: q.NegativeImages,
		TagQuery:       q.TagQuery,
		Limit:          q.Limit,
		Offset:         q.Offset,
		IncludeTags:    q.IncludeTags,
	}
	if len(q.PositiveVector) > 0 {
		body.PositiveVector = EncodeVector(q.PositiveVector)
	}

	var resp clipResponse
	if err := c.postJSON(ctx, "/api/search/clip", body, &resp); err != nil {
		return booru.ClipPage{}, err
	}
	page, _ := clipPageFrom(resp)
	return page, nil
}

// ClipSearchFile runs a semantic probe from an uploaded image. The returned
// vector lets the caller paginate the probe without re-uploading the file.
func (c *Client) ClipSearchFile(
	ctx context.Context, filename string, file io.Reader,
	tagQuery string, limit, offset int,
) (booru.ClipPage, []float32, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return booru.ClipPage{}, nil, fmt.Errorf("booru: build upload form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return booru.ClipPage{}, nil, fmt.Errorf("booru: read upload: %w", err)
	}
	fields := map[string]string{
		"tag_query": tagQuery,
		"limit":     strconv.Itoa(limit),
		"offset":    strconv.Itoa(offset),
	}
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return booru.ClipPage{}, nil, fmt.Errorf("booru: build upload form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return booru.ClipPage{}, nil, fmt.Errorf("booru: build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/search/clip/file", &buf)
	if err != nil {
		return booru.ClipPage{}, nil, fmt.Errorf("booru: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp clipResponse
	if err := c.do(req, "/api/search/clip/file", &resp); err != nil {
		return booru.ClipPage{}, nil, err
	}
	page, vec := clipPageFrom(resp)
	return page, vec, nil
}

// ImageTags fetches tags for a batch of result ids.
func (c *Client) ImageTags(ctx context.Context, ids []int) (map[int][]booru.Tag, error) {
	var resp struct {
		Tags map[string][]booru.Tag `json:"tags"`
	}
	if err := c.postJSON(ctx, "/api/image-tags", map[string][]int{"ids": ids}, &resp); err != nil {
		return nil, err
	}
	out := make(map[int][]booru.Tag, len(resp.Tags))
	for key, tags := range resp.Tags {
		id, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		out[id] = tags
	}
	return out, nil
}

// CompleteTags fetches ranked completion candidates for a prefix. kind may
// be empty to search all kinds.
func (c *Client) CompleteTags(ctx context.Context, prefix string, kind booru.TagKind) ([]booru.Completion, error) {
	vals := url.Values{}
	vals.Set("q", prefix)
	if kind != "" {
		vals.Set("kind", string(kind))
	}
	var resp struct {
		Tags []booru.Completion `json:"tags"`
	}
	if err := c.getJSON(ctx, "/api/tags", vals, &resp); err != nil {
		return nil, err
	}
	return resp.Tags, nil
}

// ClipStatus reports whether the embedding index is available.
func (c *Client) ClipStatus(ctx context.Context) (booru.ClipStatus, error) {
	var resp booru.ClipStatus
	if err := c.getJSON(ctx, "/api/status/clip", nil, &resp); err != nil {
		return booru.ClipStatus{}, err
	}
	return resp, nil
}

func clipPageFrom(resp clipResponse) (booru.ClipPage, []float32) {
	page := booru.ClipPage{
		Total:    resp.Total,
		Offset:   resp.Offset,
		Limit:    resp.Limit,
		Facets:   resp.Facets,
		TagsByID: make(map[int][]booru.Tag),
	}
	for _, row := range resp.Results {
		page.Results = append(page.Results, row.Result)
		if len(row.Tags) > 0 {
			page.TagsByID[row.ID] = row.Tags
		}
	}
	var vec []float32
	if resp.Vector != "" {
		if decoded, err := DecodeVector(resp.Vector); err == nil {
			vec = decoded
		}
	}
	return page, vec
}

func (c *Client) getJSON(ctx context.Context, endpoint string, vals url.Values, out any) error {
	u := c.baseURL + endpoint
	if len(vals) > 0 {
		u += "?" + vals.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("booru: build request: %w", err)
	}
	return c.do(req, endpoint, out)
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("booru: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("booru: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, endpoint, out)
}

func (c *Client) do(req *http.Request, endpoint string, out any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("booru: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	metrics.APIRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("search service returned non-success",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
		)
		return &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("booru: decode %s response: %w", endpoint, err)
	}
	return nil
}
