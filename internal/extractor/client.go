// Package extractor consumes the document-extraction backend: one
// multipart request carrying one file, answered with a specification
// envelope or a failure message. The backend itself is out of scope; this
// client only normalizes its responses into the engine's error taxonomy.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/vk/bidevalgo/internal/ctxlog"
	"github.com/vk/bidevalgo/internal/spec"
)

// defaultEndpoint is the backend's full-pipeline route.
const defaultEndpoint = "/parse-with-summary/"

// TransportError wraps a network-level failure or an unreadable response.
// Non-fatal: the session surfaces a generic message and the user re-uploads.
type TransportError struct {
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("extraction transport failed: %v", e.Err)
}

// Unwrap exposes the underlying transport failure.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ExtractionError reports that the backend answered but could not produce
// a usable specification. Message is human-readable, taken from the
// backend when it offered one.
type ExtractionError struct {
	Message string
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed: %s", e.Message)
}

// Client calls the extraction backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the backend at baseURL. Document
// extraction runs an LLM pipeline server-side, so timeouts should be
// generous (minutes, not seconds).
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Extract uploads one document and returns the extracted specification and
// prose summary. Failures come back as *TransportError or
// *ExtractionError; regardless of HTTP status nuance, a success=false or
// malformed envelope is a uniform extraction failure.
func (c *Client) Extract(ctx context.Context, filename string, file io.Reader) (*spec.Specification, string, error) {
	logger := ctxlog.FromContext(ctx)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", &TransportError{Err: err}
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", &TransportError{Err: err}
	}
	if err := writer.Close(); err != nil {
		return nil, "", &TransportError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+defaultEndpoint, &body)
	if err != nil {
		return nil, "", &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	logger.Debug("Uploading document for extraction.", "filename", filename, "url", req.URL.String())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &TransportError{Err: err}
	}

	var envelope spec.Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		logger.Warn("Extraction backend returned a non-JSON body.", "status", resp.StatusCode)
		return nil, "", &TransportError{Err: fmt.Errorf("non-JSON response (status %d)", resp.StatusCode)}
	}

	if !envelope.Success {
		logger.Warn("Extraction backend reported failure.", "message", envelope.FailureMessage(), "status", resp.StatusCode)
		return nil, "", &ExtractionError{Message: envelope.FailureMessage()}
	}
	if len(envelope.Data) == 0 {
		return nil, "", &ExtractionError{Message: envelope.FailureMessage()}
	}

	extracted, err := spec.Decode(envelope.Data)
	if err != nil {
		logger.Warn("Extraction backend returned malformed specification data.", "error", err)
		return nil, "", &ExtractionError{Message: envelope.FailureMessage()}
	}

	logger.Debug("Extraction succeeded.",
		"variables", len(extracted.Variables),
		"rules", len(extracted.Rules),
		"has_summary", envelope.Summary != "",
	)
	return extracted, envelope.Summary, nil
}
