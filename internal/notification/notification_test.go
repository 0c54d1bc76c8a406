package notification

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chartink-scanner-bot/internal/chartink"
)

func sampleResult() chartink.ScanResult {
	return chartink.ScanResult{
		Rows: []chartink.Row{
			{"sr": "1", "nsecode": "TCS", "close": 3501.5, "volume": float64(1200000), "per_chg": 2.4},
			{"sr": "2", "nsecode": "INFY", "close": 1502.1, "volume": float64(98000), "per_chg": -0.8},
			{"sr": "3", "nsecode": "SBIN", "close": 612.35, "volume": float64(500), "per_chg": 0.0},
		},
		FetchedAt: time.Now(),
	}
}

func TestFormatScanAlertContainsAllRows(t *testing.T) {
	msg := FormatScanAlert(sampleResult())

	for _, symbol := range []string{"TCS", "INFY", "SBIN"} {
		if !strings.Contains(msg, symbol) {
			t.Errorf("formatted alert missing symbol %s:\n%s", symbol, msg)
		}
	}
	if !strings.Contains(msg, "Sr | NSE Code | Close | Volume | Change%") {
		t.Error("formatted alert missing table header")
	}
	if !strings.Contains(msg, "1,200,000") {
		t.Error("volume should be grouped with thousands separators")
	}
	if !strings.Contains(msg, "+2.40%") {
		t.Error("positive change should carry an explicit sign")
	}
	if !strings.Contains(msg, "-0.80%") {
		t.Error("negative change missing")
	}
}

func TestGroupThousands(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1200000, "1,200,000"},
		{-45000, "-45,000"},
	}
	for _, tt := range tests {
		if got := groupThousands(tt.in); got != tt.want {
			t.Errorf("groupThousands(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTelegramSend(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	n := NewTelegramNotifier(TelegramConfig{BotToken: "token", ChatID: "42", Enabled: true})
	n.baseURL = server.URL

	if err := n.Send("hello"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if received["chat_id"] != "42" {
		t.Errorf("chat_id = %v, want 42", received["chat_id"])
	}
	if received["text"] != "hello" {
		t.Errorf("text = %v, want hello", received["text"])
	}
	if received["disable_web_page_preview"] != true {
		t.Error("disable_web_page_preview should be set")
	}
}

func TestTelegramSendErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewTelegramNotifier(TelegramConfig{BotToken: "token", ChatID: "42", Enabled: true})
	n.baseURL = server.URL

	err := n.Send("hello")
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected *NetworkError, got %T: %v", err, err)
	}
	if netErr.Provider != "telegram" {
		t.Errorf("Provider = %q, want telegram", netErr.Provider)
	}
}

func TestTelegramDisabledWithoutCredentials(t *testing.T) {
	n := NewTelegramNotifier(TelegramConfig{Enabled: true})
	if n.IsEnabled() {
		t.Error("notifier without credentials should be disabled")
	}
	if err := n.Send("hello"); err != nil {
		t.Errorf("disabled notifier Send should be a no-op, got %v", err)
	}
}

type fakeNotifier struct {
	name    string
	enabled bool
	sent    []string
	err     error
}

func (f *fakeNotifier) Send(text string) error {
	f.sent = append(f.sent, text)
	return f.err
}
func (f *fakeNotifier) Name() string    { return f.name }
func (f *fakeNotifier) IsEnabled() bool { return f.enabled }

func TestManagerFanOut(t *testing.T) {
	a := &fakeNotifier{name: "a", enabled: true}
	b := &fakeNotifier{name: "b", enabled: false}

	m := NewManager(true)
	m.AddNotifier(a)
	m.AddNotifier(b)

	if err := m.Send("msg"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(a.sent) != 1 {
		t.Errorf("enabled notifier got %d sends, want 1", len(a.sent))
	}
	if len(b.sent) != 0 {
		t.Errorf("disabled notifier got %d sends, want 0", len(b.sent))
	}
}

func TestManagerDisabled(t *testing.T) {
	a := &fakeNotifier{name: "a", enabled: true}

	m := NewManager(false)
	m.AddNotifier(a)

	if err := m.Send("msg"); err != nil {
		t.Fatalf("Send on disabled manager: %v", err)
	}
	if len(a.sent) != 0 {
		t.Error("disabled manager should not deliver")
	}
	if m.IsEnabled() {
		t.Error("disabled manager should report not enabled")
	}
}

func TestManagerReturnsProviderError(t *testing.T) {
	boom := errors.New("boom")
	a := &fakeNotifier{name: "a", enabled: true, err: boom}

	m := NewManager(true)
	m.AddNotifier(a)

	if err := m.Send("msg"); !errors.Is(err, boom) {
		t.Errorf("Send should surface provider error, got %v", err)
	}
}
