package chartink

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"chartink-scanner-bot/config"

	"github.com/rs/zerolog"
)

const screenerPage = `<html><head>
<meta name="csrf-token" content="test-token-123">
</head><body></body></html>`

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(config.ChartinkConfig{
		URL:            server.URL,
		TimeoutSeconds: 5,
	}, zerolog.Nop())
}

func scanHandler(t *testing.T, scanBody string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(screenerPage))
		case http.MethodPost:
			if got := r.Header.Get("x-csrf-token"); got != "test-token-123" {
				t.Errorf("scan POST carried csrf token %q, want %q", got, "test-token-123")
			}
			if err := r.ParseForm(); err == nil {
				if r.PostForm.Get("scan_clause") == "" {
					t.Error("scan POST missing scan_clause")
				}
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(scanBody))
		}
	})
}

func TestFetchReturnsRows(t *testing.T) {
	client := newTestClient(t, scanHandler(t,
		`{"data":[{"sr":1,"nsecode":"TCS","close":3501.5,"volume":120000,"per_chg":2.4},
		          {"sr":2,"nsecode":"INFY","close":1502.1,"volume":98000,"per_chg":-0.8}]}`))

	result, err := client.Fetch(context.Background(), "( {cash} ( latest close > latest sma(20) ) )")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if got := result.Rows[0].String("nsecode"); got != "TCS" {
		t.Errorf("row 0 nsecode = %q, want TCS", got)
	}
	if got := result.Rows[0].Float("close"); got != 3501.5 {
		t.Errorf("row 0 close = %v, want 3501.5", got)
	}
	if result.FetchedAt.IsZero() {
		t.Error("FetchedAt should be set")
	}
}

func TestFetchEmptyDataIsValidResult(t *testing.T) {
	client := newTestClient(t, scanHandler(t, `{"data":[]}`))

	result, err := client.Fetch(context.Background(), "clause")
	if err != nil {
		t.Fatalf("empty data should not be an error, got: %v", err)
	}
	if !result.Empty() {
		t.Error("expected an empty result")
	}
}

func TestFetchMissingCSRFToken(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><head></head></html>"))
	}))

	_, err := client.Fetch(context.Background(), "clause")
	var malformed *MalformedResponse
	if !errors.As(err, &malformed) {
		t.Fatalf("expected *MalformedResponse, got %T: %v", err, err)
	}
}

func TestFetchBadJSON(t *testing.T) {
	client := newTestClient(t, scanHandler(t, `{"data": not json`))

	_, err := client.Fetch(context.Background(), "clause")
	var malformed *MalformedResponse
	if !errors.As(err, &malformed) {
		t.Fatalf("expected *MalformedResponse, got %T: %v", err, err)
	}
}

func TestFetchServerError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := client.Fetch(context.Background(), "clause")
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected *NetworkError, got %T: %v", err, err)
	}
}

func TestRowAccessors(t *testing.T) {
	row := Row{"nsecode": "SBIN", "close": 612.35, "volume": "144000", "missing_num": "abc"}

	if got := row.String("nsecode"); got != "SBIN" {
		t.Errorf("String(nsecode) = %q", got)
	}
	if got := row.String("absent"); got != "" {
		t.Errorf("String(absent) = %q, want empty", got)
	}
	if got := row.Float("close"); got != 612.35 {
		t.Errorf("Float(close) = %v", got)
	}
	if got := row.Float("volume"); got != 144000 {
		t.Errorf("Float on numeric string = %v, want 144000", got)
	}
	if got := row.Float("missing_num"); got != 0 {
		t.Errorf("Float on junk = %v, want 0", got)
	}
}
