package idgen

import (
	"strings"
	"testing"
	"time"
)

func TestRecordHashDeterministic(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := RecordHash("episodic", "met alice at the summit", ts)
	b := RecordHash("episodic", "met alice at the summit", ts)
	if a != b {
		t.Errorf("RecordHash not deterministic: %q != %q", a, b)
	}
	if !strings.HasPrefix(a, "clude-") {
		t.Errorf("RecordHash = %q, want clude- prefix", a)
	}
	if len(a) != len(HashPrefix)+1+HashLen {
		t.Errorf("RecordHash length = %d, want %d", len(a), len(HashPrefix)+1+HashLen)
	}
}

func TestRecordHashDiffersOnInput(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := RecordHash("episodic", "met alice", ts)
	b := RecordHash("semantic", "met alice", ts)
	if a == b {
		t.Error("RecordHash should differ when kind differs")
	}
	c := RecordHash("episodic", "met bob", ts)
	if a == c {
		t.Error("RecordHash should differ when summary differs")
	}
	d := RecordHash("episodic", "met alice", ts.Add(time.Second))
	if a == d {
		t.Error("RecordHash should differ when createdAt differs")
	}
}
