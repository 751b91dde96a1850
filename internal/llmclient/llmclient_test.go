package llmclient

import (
	"context"
	"errors"
	"testing"
)

func TestParseScoreExtractsLeadingNumber(t *testing.T) {
	cases := []struct {
		reply string
		want  float64
	}{
		{"0.85", 0.85},
		{"0.85\nThis memory is important because...", 0.85},
		{"1.00", 1.0},
		{"  0.3 ", 0.3},
	}
	for _, c := range cases {
		got, err := parseScore(c.reply)
		if err != nil {
			t.Fatalf("parseScore(%q): %v", c.reply, err)
		}
		if got != c.want {
			t.Errorf("parseScore(%q) = %v, want %v", c.reply, got, c.want)
		}
	}
}

func TestParseScoreClampsToUnitRange(t *testing.T) {
	got, err := parseScore("5.0")
	if err != nil {
		t.Fatalf("parseScore: %v", err)
	}
	if got != 1.0 {
		t.Errorf("parseScore(5.0) = %v, want 1.0", got)
	}
}

func TestParseScoreRejectsNonNumeric(t *testing.T) {
	if _, err := parseScore("unsure"); err == nil {
		t.Error("expected error for non-numeric reply")
	}
}

func TestIsRetryableClassifiesContextErrors(t *testing.T) {
	if isRetryable(context.Canceled) {
		t.Error("context.Canceled should not be retryable")
	}
	if isRetryable(context.DeadlineExceeded) {
		t.Error("context.DeadlineExceeded should not be retryable")
	}
	if isRetryable(errors.New("some other error")) {
		t.Error("unrecognized errors should not be retried")
	}
}
