package cortexapi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cludeai/cortex/internal/capability"
	"github.com/cludeai/cortex/internal/cortex"
	"github.com/cludeai/cortex/internal/recall"
	"github.com/cludeai/cortex/internal/store"
	"github.com/cludeai/cortex/internal/store/ephemeral"
)

// stubLLM returns a fixed reply to every Synthesize call and a fixed score to
// every ScoreImportance call, independent of prompt content.
type stubLLM struct {
	reply string
}

func (s *stubLLM) ScoreImportance(ctx context.Context, summary string, hints []string) (float64, error) {
	return 0.5, nil
}

func (s *stubLLM) Synthesize(ctx context.Context, prompt string) (string, error) {
	return s.reply, nil
}

var _ capability.LanguageModel = (*stubLLM)(nil)

func insertRecord(t *testing.T, s *ephemeral.Store, r *cortex.Record) int64 {
	t.Helper()
	id, err := s.InsertRecord(context.Background(), r)
	require.NoError(t, err)
	return id
}

// S1: recall ranks by composite score (text relevance + importance) when no
// embedder is configured.
func TestRecallOrdersByRelevanceAndImportance(t *testing.T) {
	s := ephemeral.New()
	now := time.Now().UTC()
	clock := capability.FixedClock{T: now}

	c, err := New(Config{Storage: s, Clock: clock})
	require.NoError(t, err)

	a := insertRecord(t, s, &cortex.Record{Kind: cortex.KindEpisodic, Content: "user likes X", Summary: "user likes X", Importance: 0.4, CreatedAt: now, LastAccessed: now, DecayFactor: 1})
	b := insertRecord(t, s, &cortex.Record{Kind: cortex.KindEpisodic, Content: "user dislikes X", Summary: "user dislikes X", Importance: 0.9, CreatedAt: now, LastAccessed: now, DecayFactor: 1})
	insertRecord(t, s, &cortex.Record{Kind: cortex.KindEpisodic, Content: "weather report", Summary: "weather report", Importance: 0.3, CreatedAt: now, LastAccessed: now, DecayFactor: 1})

	resp, err := c.Recall(context.Background(), recall.Query{Text: "X", Limit: 2})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, b, resp.Results[0].Record.ID, "higher importance record should rank first among equally relevant matches")
	assert.Equal(t, a, resp.Results[1].Record.ID)
}

// S2: two records surfaced together by the same recall seed a "relates" bond
// at 0.3, and a second co-retrieval strengthens it to 0.35.
func TestRecallReinforcesCoRetrievedPair(t *testing.T) {
	s := ephemeral.New()
	now := time.Now().UTC()
	clock := capability.FixedClock{T: now}
	c, err := New(Config{Storage: s, Clock: clock})
	require.NoError(t, err)

	d := insertRecord(t, s, &cortex.Record{Kind: cortex.KindEpisodic, Content: "topic shared one", Summary: "shared one", Importance: 0.5, CreatedAt: now, LastAccessed: now, DecayFactor: 1})
	e := insertRecord(t, s, &cortex.Record{Kind: cortex.KindEpisodic, Content: "topic shared two", Summary: "shared two", Importance: 0.5, CreatedAt: now, LastAccessed: now, DecayFactor: 1})

	_, err = c.Recall(context.Background(), recall.Query{Text: "shared", Limit: 10})
	require.NoError(t, err)

	bond := waitForBond(t, s, d, e, cortex.BondRelates)
	require.NotNil(t, bond, "expected a relates bond to appear between co-retrieved records")
	assert.InDelta(t, 0.3, bond.Strength, 1e-9)

	_, err = c.Recall(context.Background(), recall.Query{Text: "shared", Limit: 10})
	require.NoError(t, err)

	bond2 := waitForBondStrength(t, s, d, e, cortex.BondRelates, 0.35)
	require.NotNil(t, bond2)
	assert.InDelta(t, 0.35, bond2.Strength, 1e-9)
}

func waitForBond(t *testing.T, s *ephemeral.Store, a, b int64, kind cortex.BondKind) *cortex.Bond {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if bond := findBond(s, a, b, kind); bond != nil {
			return bond
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

func waitForBondStrength(t *testing.T, s *ephemeral.Store, a, b int64, kind cortex.BondKind, want float64) *cortex.Bond {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if bond := findBond(s, a, b, kind); bond != nil && bond.Strength >= want-1e-9 {
			return bond
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

func findBond(s *ephemeral.Store, a, b int64, kind cortex.BondKind) *cortex.Bond {
	ctx := context.Background()
	if bond, err := s.GetBond(ctx, cortex.BondKey{SourceID: a, TargetID: b, Kind: kind}); err == nil {
		return bond
	}
	if bond, err := s.GetBond(ctx, cortex.BondKey{SourceID: b, TargetID: a, Kind: kind}); err == nil {
		return bond
	}
	return nil
}

// S3: an episodic record untouched for 48h decays by rate^2 (0.93^2).
func TestDecayAppliesPerKindRate(t *testing.T) {
	s := ephemeral.New()
	now := time.Now().UTC()
	clock := capability.FixedClock{T: now}
	c, err := New(Config{Storage: s, Clock: clock})
	require.NoError(t, err)

	f := insertRecord(t, s, &cortex.Record{
		Kind: cortex.KindEpisodic, Content: "old news", Summary: "old news",
		Importance: 0.5, CreatedAt: now.Add(-48 * time.Hour), LastAccessed: now.Add(-48 * time.Hour), DecayFactor: 1,
	})

	n, err := c.Decay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err := s.GetRecord(context.Background(), f)
	require.NoError(t, err)
	assert.InDelta(t, 0.93*0.93, rec.DecayFactor, 1e-6)
}

// S4: five old, faded, same-concept episodic records compact into one new
// semantic record that evidences all five; each original is marked compacted
// and bonded to it via "elaborates".
func TestDreamCompactionSummarizesFadedCluster(t *testing.T) {
	s := ephemeral.New()
	now := time.Now().UTC()
	clock := capability.FixedClock{T: now}
	llm := &stubLLM{reply: "pricing has stayed roughly flat"}
	c, err := New(Config{Storage: s, Clock: clock, LLM: llm})
	require.NoError(t, err)

	old := now.Add(-10 * 24 * time.Hour)
	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, insertRecord(t, s, &cortex.Record{
			Kind: cortex.KindEpisodic, Content: "pricing stayed the same", Summary: "pricing stayed the same",
			Concepts: []string{"pricing"}, Importance: 0.3, CreatedAt: old, LastAccessed: old, DecayFactor: 0.2,
		}))
	}

	report, err := c.Dream(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.CompactedInto)

	all, err := s.AllRecords(context.Background(), "")
	require.NoError(t, err)
	var newSemantic *cortex.Record
	for _, r := range all {
		if r.Kind == cortex.KindSemantic {
			newSemantic = r
		}
	}
	require.NotNil(t, newSemantic)
	assert.Len(t, newSemantic.EvidenceIDs, 5)

	bonds, err := s.ListAllBonds(context.Background())
	require.NoError(t, err)
	elaborates := 0
	for _, b := range bonds {
		if b.Kind == cortex.BondElaborates {
			elaborates++
		}
	}
	assert.Equal(t, 5, elaborates)

	for _, id := range ids {
		r, err := s.GetRecord(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, r.Compacted)
		assert.NotEmpty(t, r.CompactedInto)
	}
}

// S5: two contradicting records resolve into a new semantic record bonded to
// both; the weaker of the pair has its decayFactor halved.
func TestDreamResolvesContradictionAndWeakensLoser(t *testing.T) {
	s := ephemeral.New()
	ctx := context.Background()
	now := time.Now().UTC()
	clock := capability.FixedClock{T: now}
	llm := &stubLLM{reply: "fees vary by network"}
	c, err := New(Config{Storage: s, Clock: clock, LLM: llm})
	require.NoError(t, err)

	g := insertRecord(t, s, &cortex.Record{Kind: cortex.KindSemantic, Content: "fees are low", Summary: "fees are low", Importance: 0.7, CreatedAt: now, LastAccessed: now, DecayFactor: 1})
	h := insertRecord(t, s, &cortex.Record{Kind: cortex.KindSemantic, Content: "fees are high", Summary: "fees are high", Importance: 0.4, CreatedAt: now, LastAccessed: now, DecayFactor: 0.8})
	require.NoError(t, s.InsertBond(ctx, &cortex.Bond{SourceID: g, TargetID: h, Kind: cortex.BondContradicts, Strength: 0.6, CreatedAt: now}))

	report, err := c.Dream(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.ResolutionsNew)

	weaker, err := s.GetRecord(ctx, h)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, weaker.DecayFactor, 1e-9, "lower-importance record should have its decayFactor halved")

	bonds, err := s.ListAllBonds(ctx)
	require.NoError(t, err)
	resolves := 0
	for _, b := range bonds {
		if b.Kind == cortex.BondResolves {
			resolves++
		}
	}
	assert.Equal(t, 2, resolves)
}

// slowStorage wraps an ephemeral store and stalls QueryCandidates long
// enough for a caller's context to be cancelled mid-call, simulating a slow
// backend for the cancellation scenario.
type slowStorage struct {
	*ephemeral.Store
	delay time.Duration
}

func (s *slowStorage) QueryCandidates(ctx context.Context, f store.CandidateFilter) ([]*cortex.Record, error) {
	select {
	case <-time.After(s.delay):
		return s.Store.QueryCandidates(ctx, f)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// S6: a recall whose context is cancelled mid-flight returns a cancellation
// error and never reinforces anything.
func TestRecallSurfacesCancellationWithoutReinforcing(t *testing.T) {
	base := ephemeral.New()
	now := time.Now().UTC()
	clock := capability.FixedClock{T: now}
	slow := &slowStorage{Store: base, delay: 200 * time.Millisecond}

	c, err := New(Config{Storage: slow, Clock: clock})
	require.NoError(t, err)

	i := insertRecord(t, base, &cortex.Record{Kind: cortex.KindEpisodic, Content: "slow one", Summary: "slow one", Importance: 0.5, CreatedAt: now, LastAccessed: now, DecayFactor: 1})
	j := insertRecord(t, base, &cortex.Record{Kind: cortex.KindEpisodic, Content: "slow two", Summary: "slow two", Importance: 0.5, CreatedAt: now, LastAccessed: now, DecayFactor: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = c.Recall(ctx, recall.Query{Text: "slow", Limit: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, cortex.ErrCancelled)

	time.Sleep(50 * time.Millisecond) // let any stray goroutine, if one were wrongly launched, settle
	assert.Nil(t, findBond(base, i, j, cortex.BondRelates), "cancelled recall must not reinforce")
}
