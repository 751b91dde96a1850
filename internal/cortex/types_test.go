package cortex

import (
	"testing"
	"time"
)

func TestRecordClampRanges(t *testing.T) {
	now := time.Now().UTC()
	r := &Record{
		Kind:         KindEpisodic,
		Importance:   1.5,
		Valence:      -3,
		DecayFactor:  0,
		CreatedAt:    now,
		LastAccessed: now.Add(-time.Hour),
	}
	r.ClampRanges()

	if r.Importance != 1 {
		t.Errorf("Importance = %v, want 1", r.Importance)
	}
	if r.Valence != -1 {
		t.Errorf("Valence = %v, want -1", r.Valence)
	}
	if r.DecayFactor != 1 {
		t.Errorf("DecayFactor = %v, want 1 (zero-value default)", r.DecayFactor)
	}
	if r.LastAccessed.Before(r.CreatedAt) {
		t.Errorf("LastAccessed %v must not be before CreatedAt %v", r.LastAccessed, r.CreatedAt)
	}
}

func TestRecordClampRangesMinDecay(t *testing.T) {
	r := &Record{Kind: KindEpisodic, DecayFactor: 0.001}
	r.ClampRanges()
	if r.DecayFactor != 0.05 {
		t.Errorf("DecayFactor = %v, want floor 0.05", r.DecayFactor)
	}
}

func TestRecordValidate(t *testing.T) {
	tests := []struct {
		name    string
		r       Record
		wantErr bool
	}{
		{"valid", Record{Kind: KindEpisodic, Content: "hello"}, false},
		{"missing kind", Record{Content: "hello"}, true},
		{"invalid kind", Record{Kind: Kind("bogus"), Content: "hello"}, true},
		{"empty content", Record{Kind: KindEpisodic}, true},
		{"compacted without target", Record{Kind: KindEpisodic, Content: "x", Compacted: true}, true},
		{"compacted with target", Record{Kind: KindEpisodic, Content: "x", Compacted: true, CompactedInto: "clude-abc"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate()
			if tt.wantErr && err == nil {
				t.Fatalf("Validate() = nil, want error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestBondKey(t *testing.T) {
	b := Bond{SourceID: 1, TargetID: 2, Kind: BondRelates}
	k := b.Key()
	if k.SourceID != 1 || k.TargetID != 2 || k.Kind != BondRelates {
		t.Errorf("Key() = %+v, want {1 2 relates}", k)
	}
}

func TestBondKindValid(t *testing.T) {
	if !BondRelates.Valid() {
		t.Error("relates should be a valid bond kind")
	}
	if BondKind("bogus").Valid() {
		t.Error("bogus should not be a valid bond kind")
	}
}
