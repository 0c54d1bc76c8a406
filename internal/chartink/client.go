// Package chartink fetches screener results from the Chartink scan endpoint.
// Chartink guards the endpoint with a CSRF token embedded in the page, so a
// fetch is a GET for the token followed by a POST of the scan clause within
// the same cookie session.
package chartink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"chartink-scanner-bot/config"

	"github.com/rs/zerolog"
)

var csrfTokenPattern = regexp.MustCompile(`<meta\s+name="csrf-token"\s+content="([^"]+)"`)

// Client talks to the Chartink screener endpoint
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
	now        func() time.Time
}

func NewClient(cfg config.ChartinkConfig, logger zerolog.Logger) *Client {
	// Cookie jar keeps the session between the token GET and the scan POST
	jar, _ := cookiejar.New(nil)

	return &Client{
		baseURL: cfg.URL,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
			Jar:     jar,
		},
		logger: logger.With().Str("component", "chartink").Logger(),
		now:    time.Now,
	}
}

// Fetch runs the scan clause and returns the matching rows. An empty result
// is returned when the scan matched nothing; errors are *NetworkError or
// *MalformedResponse, both transient.
func (c *Client) Fetch(ctx context.Context, scanClause string) (ScanResult, error) {
	token, err := c.fetchCSRFToken(ctx)
	if err != nil {
		return ScanResult{}, err
	}

	form := url.Values{"scan_clause": {scanClause}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return ScanResult{}, &NetworkError{Op: "build scan request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("x-csrf-token", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ScanResult{}, &NetworkError{Op: "scan post", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ScanResult{}, &NetworkError{Op: "scan post", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var payload struct {
		Data []Row `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return ScanResult{}, &MalformedResponse{Reason: "invalid scan JSON", Err: err}
	}

	result := ScanResult{Rows: payload.Data, FetchedAt: c.now()}
	if result.Empty() {
		c.logger.Debug().Msg("scan returned no matches")
	} else {
		c.logger.Debug().Int("rows", len(result.Rows)).Msg("scan returned matches")
	}
	return result, nil
}

// fetchCSRFToken loads the screener page and extracts the csrf-token meta tag
func (c *Client) fetchCSRFToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return "", &NetworkError{Op: "build token request", Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &NetworkError{Op: "token get", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &NetworkError{Op: "token get", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &NetworkError{Op: "token read", Err: err}
	}

	match := csrfTokenPattern.FindSubmatch(body)
	if match == nil {
		return "", &MalformedResponse{Reason: "csrf token not found in page"}
	}
	return string(match[1]), nil
}
