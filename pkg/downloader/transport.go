package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// StatusError is a definitive HTTP failure, such as a missing payload.
// The installer treats it as permanent and spends no retry budget on it.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download failed with status %d", e.Code)
}

// Response is the outcome of a metadata fetch.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport is the network capability surface the installer consumes.
// Production clients and test doubles both implement it.
type Transport interface {
	// Fetch issues a metadata request and returns the full response.
	Fetch(ctx context.Context, url string, headers map[string]string) (*Response, error)

	// Download fetches url into dest from the beginning and returns the
	// number of bytes written. progress may be nil.
	Download(ctx context.Context, url, dest string, progress ProgressFunc) (int64, error)

	// Resume continues a partial download from the given byte offset and
	// returns the final size of dest. Only valid when SupportsResume
	// reports true.
	Resume(ctx context.Context, url, dest string, offset int64, progress ProgressFunc) (int64, error)

	// SupportsResume reports whether Resume is usable.
	SupportsResume() bool

	// SetTimeout adjusts the per-request timeout.
	SetTimeout(d time.Duration)

	// SetMaxRetries adjusts the transport's advertised retry budget. The
	// installer reads it to bound its own retry loop.
	SetMaxRetries(n int)

	// MaxRetries returns the advertised retry budget.
	MaxRetries() int
}

// HTTPTransportConfig configures the HTTP transport.
type HTTPTransportConfig struct {
	Timeout    time.Duration
	UserAgent  string
	MaxRetries int

	// Resume advertises Range-request support.
	Resume bool
}

// DefaultHTTPTransportConfig returns the default transport configuration.
func DefaultHTTPTransportConfig() HTTPTransportConfig {
	return HTTPTransportConfig{
		Timeout:    30 * time.Second,
		UserAgent:  "aimux/2.0.0",
		MaxRetries: 3,
		Resume:     true,
	}
}

// HTTPTransport downloads payloads over HTTP(S).
type HTTPTransport struct {
	config HTTPTransportConfig
	client *http.Client
}

// NewHTTPTransport creates an HTTP transport.
func NewHTTPTransport(config HTTPTransportConfig) *HTTPTransport {
	if config.Timeout <= 0 {
		config.Timeout = DefaultHTTPTransportConfig().Timeout
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultHTTPTransportConfig().UserAgent
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = DefaultHTTPTransportConfig().MaxRetries
	}
	return &HTTPTransport{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Fetch implements Transport.
func (t *HTTPTransport) Fetch(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", t.config.UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch read failed: %w", err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// Download implements Transport.
func (t *HTTPTransport) Download(ctx context.Context, url, dest string, progress ProgressFunc) (int64, error) {
	return t.transfer(ctx, url, dest, 0, progress)
}

// Resume implements Transport. If the server ignores the Range request
// the download restarts from scratch.
func (t *HTTPTransport) Resume(ctx context.Context, url, dest string, offset int64, progress ProgressFunc) (int64, error) {
	if !t.config.Resume {
		return t.transfer(ctx, url, dest, 0, progress)
	}
	return t.transfer(ctx, url, dest, offset, progress)
}

// SupportsResume implements Transport.
func (t *HTTPTransport) SupportsResume() bool {
	return t.config.Resume
}

// SetTimeout implements Transport.
func (t *HTTPTransport) SetTimeout(d time.Duration) {
	t.config.Timeout = d
	t.client.Timeout = d
}

// SetMaxRetries implements Transport.
func (t *HTTPTransport) SetMaxRetries(n int) {
	if n >= 0 {
		t.config.MaxRetries = n
	}
}

// MaxRetries implements Transport.
func (t *HTTPTransport) MaxRetries() int {
	return t.config.MaxRetries
}

func (t *HTTPTransport) transfer(ctx context.Context, url, dest string, offset int64, progress ProgressFunc) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", t.config.UserAgent)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Full body; any partial destination restarts from scratch.
		offset = 0
	case http.StatusPartialContent:
	default:
		// Client errors are definitive; server errors and throttling may
		// clear up on retry.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
			resp.StatusCode != http.StatusTooManyRequests &&
			resp.StatusCode != http.StatusRequestTimeout {
			return 0, &StatusError{Code: resp.StatusCode}
		}
		return 0, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(dest, flags, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to open destination: %w", err)
	}
	defer out.Close()

	total := offset
	if resp.ContentLength > 0 {
		total += resp.ContentLength
	}

	written, err := copyWithProgress(ctx, out, resp.Body, offset, total, progress)
	if err != nil {
		return offset + written, fmt.Errorf("download interrupted: %w", err)
	}
	return offset + written, nil
}

func copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, offset, total int64, progress ProgressFunc) (int64, error) {
	started := time.Now()
	buf := make([]byte, 128*1024)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
			if progress != nil {
				progress(DownloadProgress{
					BytesReceived: offset + written,
					TotalBytes:    total,
					StartedAt:     started,
				})
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
