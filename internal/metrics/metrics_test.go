package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard https", "https://en.wikipedia.org/w/api.php", "en.wikipedia.org"},
		{"upper case", "https://EN.Wikipedia.org/w/api.php", "en.wikipedia.org"},
		{"no scheme", "en.wikipedia.org/w/api.php", "en.wikipedia.org"},
		{"host with port", "127.0.0.1:8080", "127.0.0.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserveHelpersInitialize(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(casesTotal.WithLabelValues("test-job", CaseResolved))
	ObserveCase("test-job", CaseResolved)
	if got := testutil.ToFloat64(casesTotal.WithLabelValues("test-job", CaseResolved)); got != before+1 {
		t.Errorf("expected cases counter to grow by 1, got %f -> %f", before, got)
	}

	ObserveChunk("test-job", ChunkSkipped)
	if got := testutil.ToFloat64(chunksTotal.WithLabelValues("test-job", ChunkSkipped)); got < 1 {
		t.Errorf("expected skipped chunk to be counted, got %f", got)
	}

	beforeCooldown := testutil.ToFloat64(cooldownSecondsTotal)
	ObserveCooldown(2 * time.Second)
	if got := testutil.ToFloat64(cooldownSecondsTotal); got != beforeCooldown+2 {
		t.Errorf("expected cooldown to grow by 2s, got %f -> %f", beforeCooldown, got)
	}

	ObserveAPICall("parse", "ok", 10*time.Millisecond)
	if got := testutil.ToFloat64(apiRequestsTotal.WithLabelValues("parse", "ok")); got < 1 {
		t.Errorf("expected api call to be counted, got %f", got)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://en.wikipedia.org", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
