package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"alphascreen/internal/ratelimit"
)

const (
	defaultBaseURL = "https://archives.nseindia.com/products/content"
	filePattern    = "sec_bhavdata_full_%s.csv"
	dateLayout     = "02012006" // DDMMYYYY
)

var (
	// ErrDayUnavailable means no archive file exists for the date (holiday or not yet published)
	ErrDayUnavailable = errors.New("archive day unavailable")

	// ErrSchema means the file was fetched but could not be mapped to delivery records
	ErrSchema = errors.New("archive schema not recognised")
)

// Source fetches the raw settlement file for one trading date.
// Implementations return ErrDayUnavailable when the file does not exist.
type Source interface {
	Fetch(ctx context.Context, date time.Time) ([]byte, error)
}

// HTTPSource downloads full bhavcopy files from the exchange archive host
type HTTPSource struct {
	baseURL string
	client  *http.Client
	limiter *ratelimit.Limiter
}

// NewHTTPSource creates a source rooted at baseURL ("" uses the NSE archive)
func NewHTTPSource(baseURL string, timeout time.Duration, limiter *ratelimit.Limiter) *HTTPSource {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
	}
}

// URL returns the archive location for date
func (s *HTTPSource) URL(date time.Time) string {
	return s.baseURL + "/" + fmt.Sprintf(filePattern, date.Format(dateLayout))
}

// Fetch downloads the archive file for date
func (s *HTTPSource) Fetch(ctx context.Context, date time.Time) ([]byte, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL(date), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Connection", "keep-alive")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", date.Format("2006-01-02"), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrDayUnavailable, date.Format("2006-01-02"))
	case resp.StatusCode == http.StatusTooManyRequests:
		if s.limiter != nil {
			s.limiter.SignalRateLimited()
		}
		return nil, fmt.Errorf("downloading %s: rate limited", date.Format("2006-01-02"))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("downloading %s: status %d", date.Format("2006-01-02"), resp.StatusCode)
	}
	if s.limiter != nil {
		s.limiter.ResetBackoff()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", date.Format("2006-01-02"), err)
	}
	return body, nil
}
