package analysis

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"inkcheck/upload"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is where a locally started analysis service listens
	DefaultBaseURL = "http://localhost:8000"

	// PredictPath is the analysis endpoint
	PredictPath = "/predict"

	// FileField is the multipart part carrying the image
	FileField = "file"

	// maxBodyPreview limits how much of an error body is kept
	maxBodyPreview = 512
)

// Exchange describes one request/response round trip, for transparency views
type Exchange struct {
	Method      string
	URL         string
	ContentType string
	FileName    string
	BytesSent   int64
	StatusCode  int
	Latency     time.Duration
	Err         error
}

// Client talks to the analysis service
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	debug      bool
	observer   func(Exchange)
	interval   time.Duration

	rest    *resty.Client
	limiter *rate.Limiter
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout bounds each request. Zero leaves the transport default.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithDebug enables debug logging of exchanges
func WithDebug(debug bool) ClientOption {
	return func(c *Client) {
		c.debug = debug
	}
}

// WithMinInterval spaces submissions at least d apart. Zero disables the
// limit.
func WithMinInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.interval = d
	}
}

// WithObserver registers a callback invoked after every exchange
func WithObserver(fn func(Exchange)) ClientOption {
	return func(c *Client) {
		c.observer = fn
	}
}

// NewClient creates a client for the service at baseURL
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid service URL %q: %w", baseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid service URL %q: scheme must be http or https", baseURL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid service URL %q: missing host", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient != nil {
		c.rest = resty.NewWithClient(c.httpClient)
	} else {
		c.rest = resty.New()
	}
	c.rest.
		SetBaseURL(c.baseURL).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")
	if c.timeout > 0 {
		c.rest.SetTimeout(c.timeout)
	}
	if c.interval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(c.interval), 1)
	}

	return c, nil
}

// BaseURL returns the service base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Submit sends the candidate to the service once and decodes the result.
// Failures are *Error values; nothing is retried.
func (c *Client) Submit(ctx context.Context, file upload.Candidate) (*Result, error) {
	body, size, closeBody, err := openCandidate(file)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	defer closeBody()

	contentType := file.Type
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	ex := Exchange{
		Method:      http.MethodPost,
		URL:         c.baseURL + PredictPath,
		ContentType: contentType,
		FileName:    file.Name,
		BytesSent:   size,
	}

	if c.debug {
		log.Debug().
			Str("url", ex.URL).
			Str("file", file.Name).
			Str("content_type", contentType).
			Int64("bytes", size).
			Msg("submitting image for analysis")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			ex.Err = &Error{Kind: KindNetwork, Err: fmt.Errorf("rate limiter: %w", err)}
			c.observe(ex)
			return nil, ex.Err
		}
	}

	start := time.Now()
	resp, err := c.rest.R().
		SetContext(ctx).
		SetMultipartField(FileField, file.Name, contentType, body).
		Post(PredictPath)
	ex.Latency = time.Since(start)

	result, err := c.handleResponse(resp, err)
	if resp != nil {
		ex.StatusCode = resp.StatusCode()
	}
	ex.Err = err
	c.observe(ex)

	return result, err
}

func (c *Client) handleResponse(resp *resty.Response, err error) (*Result, error) {
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}

	raw := resp.Body()
	if c.debug {
		log.Debug().
			Int("status", resp.StatusCode()).
			Int("bytes", len(raw)).
			Str("body", preview(raw)).
			Msg("analysis response")
	}

	if !resp.IsSuccess() {
		return nil, &Error{
			Kind:       KindHTTPStatus,
			StatusCode: resp.StatusCode(),
			Body:       preview(raw),
			Err:        fmt.Errorf("HTTP error! status: %d", resp.StatusCode()),
		}
	}

	result, err := decodeResult(raw)
	if err != nil {
		return nil, &Error{Kind: KindParse, Body: preview(raw), Err: err}
	}
	return result, nil
}

func (c *Client) observe(ex Exchange) {
	if c.observer != nil {
		c.observer(ex)
	}
}

// openCandidate returns the bytes to upload, reading from disk when the
// candidate was never loaded into memory
func openCandidate(file upload.Candidate) (io.Reader, int64, func(), error) {
	if len(file.Data) > 0 || file.Path == "" {
		return bytes.NewReader(file.Data), int64(len(file.Data)), func() {}, nil
	}

	f, err := os.Open(file.Path)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to open file: %w", err)
	}
	size := file.Size
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}
	return f, size, func() { f.Close() }, nil
}

func preview(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxBodyPreview {
		return s[:maxBodyPreview] + "..."
	}
	return s
}
