package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrEmptyMeetingID is returned when create-live succeeds without an id
var ErrEmptyMeetingID = errors.New("backend returned an empty meeting id")

// StatusError is returned for any non-2xx response
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP error %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Config contains backend client configuration
type Config struct {
	BaseURL              string
	APIKey               string
	Timeout              time.Duration
	MaxConcurrentUploads int
	UserAgent            string
}

// Client talks to the notera backend
type Client struct {
	config     Config
	baseURL    *url.URL
	httpClient *http.Client
	semaphore  chan struct{} // bounds concurrent uploads
	logger     zerolog.Logger

	// Statistics
	totalUploads    uint64
	successUploads  uint64
	failedUploads   uint64
	avgUploadTime   time.Duration
	totalFinalizes  uint64
	failedFinalizes uint64

	mu sync.RWMutex
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalUploads    uint64        `json:"total_uploads"`
	SuccessUploads  uint64        `json:"success_uploads"`
	FailedUploads   uint64        `json:"failed_uploads"`
	SuccessRate     float64       `json:"success_rate"`
	AvgUploadTime   time.Duration `json:"avg_upload_time"`
	ActiveUploads   int           `json:"active_uploads"`
	TotalFinalizes  uint64        `json:"total_finalizes"`
	FailedFinalizes uint64        `json:"failed_finalizes"`
}

type createLiveResponse struct {
	ID string `json:"id"`
}

// NewClient creates a new backend HTTP client
func NewClient(config Config, logger zerolog.Logger) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	baseURL, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", config.BaseURL, err)
	}

	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	if config.MaxConcurrentUploads <= 0 {
		config.MaxConcurrentUploads = 4
	}

	if config.UserAgent == "" {
		config.UserAgent = "notera-capture/dev"
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: config.MaxConcurrentUploads,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		baseURL:    baseURL,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrentUploads),
		logger:     logger.With().Str("component", "backend").Logger(),
	}, nil
}

// BaseURL returns the configured backend address
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// CreateLiveMeeting asks the backend for a new live meeting and returns its id
func (c *Client) CreateLiveMeeting(ctx context.Context) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/meetings/create-live", nil, "")
	if err != nil {
		return "", err
	}

	var resp createLiveResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse create-live response: %w", err)
	}

	if resp.ID == "" {
		return "", ErrEmptyMeetingID
	}

	return resp.ID, nil
}

// UploadChunk streams the chunk file at filePath to the backend as the multipart
// part "file" together with the 1-based chunk_index field.
func (c *Client) UploadChunk(ctx context.Context, sessionID, filePath, fileName string, index int) error {
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalUploads()

	err := c.uploadChunk(ctx, sessionID, filePath, fileName, index)
	if err != nil {
		c.incrementFailedUploads()
		return err
	}

	c.incrementSuccessUploads(time.Since(startTime))
	return nil
}

func (c *Client) uploadChunk(ctx context.Context, sessionID, filePath, fileName string, index int) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open chunk file: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeChunkForm(writer, file, fileName, index))
	}()

	path := "/upload/transcribe-chunk/" + url.PathEscape(sessionID)
	body, err := c.do(ctx, http.MethodPost, path, pr, writer.FormDataContentType())
	// Unblock the writer goroutine if the request ended before reading the body.
	pr.Close()
	if err != nil {
		return err
	}

	c.logger.Debug().
		Str("session_id", sessionID).
		Int("chunk_index", index).
		RawJSON("response", jsonOrString(body)).
		Msg("Chunk accepted by backend")

	return nil
}

func writeChunkForm(writer *multipart.Writer, file io.Reader, fileName string, index int) error {
	fileWriter, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := io.Copy(fileWriter, file); err != nil {
		return fmt.Errorf("failed to write chunk data: %w", err)
	}

	if err := writer.WriteField("chunk_index", strconv.Itoa(index)); err != nil {
		return fmt.Errorf("failed to write field chunk_index: %w", err)
	}

	return writer.Close()
}

// FinalizeLiveMeeting tells the backend that no more chunks will arrive
func (c *Client) FinalizeLiveMeeting(ctx context.Context, sessionID string) error {
	path := "/meetings/" + url.PathEscape(sessionID) + "/finalize-live"
	_, err := c.do(ctx, http.MethodPost, path, nil, "")

	c.mu.Lock()
	c.totalFinalizes++
	if err != nil {
		c.failedFinalizes++
	}
	c.mu.Unlock()

	return err
}

// Ping checks that the backend answers HTTP at all. Any response counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/", nil, "")
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

// do performs a single request and returns the body of a 2xx response
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	return respBody, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("X-Request-ID", uuid.New().String())

	return req, nil
}

func jsonOrString(body []byte) []byte {
	if json.Valid(body) {
		return body
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}

// Statistics methods
func (c *Client) incrementTotalUploads() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalUploads++
}

func (c *Client) incrementFailedUploads() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedUploads++
}

func (c *Client) incrementSuccessUploads(took time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successUploads++

	// Simple moving average
	if c.avgUploadTime == 0 {
		c.avgUploadTime = took
	} else {
		c.avgUploadTime = (c.avgUploadTime + took) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalUploads > 0 {
		successRate = float64(c.successUploads) / float64(c.totalUploads) * 100
	}

	return ClientStats{
		TotalUploads:    c.totalUploads,
		SuccessUploads:  c.successUploads,
		FailedUploads:   c.failedUploads,
		SuccessRate:     successRate,
		AvgUploadTime:   c.avgUploadTime,
		ActiveUploads:   len(c.semaphore),
		TotalFinalizes:  c.totalFinalizes,
		FailedFinalizes: c.failedFinalizes,
	}
}

// Close releases idle connections
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
