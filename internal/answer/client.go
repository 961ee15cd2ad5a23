package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrMalformedResponse is returned when a 2xx body cannot be decoded or is
// missing the required answer field.
var ErrMalformedResponse = errors.New("answer: malformed response")

// StatusError is a non-2xx reply from the answering API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("answer: status %d", e.Code)
	}
	return fmt.Sprintf("answer: status %d: %s", e.Code, e.Body)
}

type Client struct {
	BaseURL string
	Tokens  TokenSource
	Client  *http.Client
}

func NewClient(baseURL string, tokens TokenSource) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	if tokens == nil {
		tokens = DevToken
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Tokens:  tokens,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

// WithBaseURL returns a copy of c talking to another deployment of the API.
func (c *Client) WithBaseURL(baseURL string) *Client {
	cp := *c
	cp.BaseURL = strings.TrimRight(baseURL, "/")
	return &cp
}

type Request struct {
	TenantID       string  `json:"tenant_id"`
	QueryText      string  `json:"query_text"`
	ImageURL       *string `json:"image_url"`
	ConversationID *string `json:"conversation_id"`
}

type Citation struct {
	SourceID string `json:"source_id,omitempty"`
	Title    string `json:"title"`
	Page     *int   `json:"page,omitempty"`
}

type Response struct {
	Answer     string     `json:"answer"`
	Confidence *float64   `json:"confidence,omitempty"`
	Citations  []Citation `json:"citations,omitempty"`
	Escalated  bool       `json:"escalated"`
}

// wire form: answer is a pointer so a missing field is detectable
type answerResp struct {
	Answer     *string    `json:"answer"`
	Confidence *float64   `json:"confidence"`
	Citations  []Citation `json:"citations"`
	Escalated  bool       `json:"escalated"`
}

func (c *Client) Answer(ctx context.Context, in Request) (*Response, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}

	var decoded answerResp
	if err := c.doJSON(ctx, http.MethodPost, "/v1/answer", bytes.NewReader(b), "application/json", &decoded); err != nil {
		return nil, err
	}
	if decoded.Answer == nil {
		return nil, fmt.Errorf("%w: missing answer", ErrMalformedResponse)
	}
	return &Response{
		Answer:     *decoded.Answer,
		Confidence: decoded.Confidence,
		Citations:  decoded.Citations,
		Escalated:  decoded.Escalated,
	}, nil
}

type Health struct {
	OK               bool   `json:"ok"`
	Service          string `json:"service"`
	OpenAIConfigured bool   `json:"openai_configured,omitempty"`
}

func (c *Client) HealthCheck(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.doJSON(ctx, http.MethodGet, "/healthz", nil, "", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

type Upload struct {
	SourceID string `json:"source_id"`
	Status   string `json:"status"`
	Size     int64  `json:"size"`
}

// UploadDocument posts a document for ingestion as multipart {file, tenant_id}.
func (c *Client) UploadDocument(ctx context.Context, tenantID, filename string, r io.Reader) (*Upload, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("tenant_id", tenantID); err != nil {
		return nil, err
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	// the ingest endpoint also reads tenant_id from the query string
	path := "/v1/ingest/upload?tenant_id=" + url.QueryEscape(tenantID)

	var up Upload
	if err := c.doJSON(ctx, http.MethodPost, path, &body, mw.FormDataContentType(), &up); err != nil {
		return nil, err
	}
	return &up, nil
}

type TenantStats struct {
	TenantID         string   `json:"tenant_id"`
	TotalQueries     int64    `json:"total_queries"`
	QueriesThisMonth int64    `json:"queries_this_month"`
	EscalationRate   float64  `json:"escalation_rate"`
	AvgConfidence    float64  `json:"avg_confidence"`
	TopTopics        []string `json:"top_topics"`
}

func (c *Client) TenantStats(ctx context.Context, tenantID string) (*TenantStats, error) {
	var s TenantStats
	path := "/v1/tenants/" + url.PathEscape(tenantID) + "/stats"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, "", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	if c.Client == nil {
		return errors.New("answer: http client is nil")
	}

	token, err := c.Tokens.Token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
