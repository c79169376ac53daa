package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nudge/internal/engine"
)

func testNudge(id, rule string, seq int64, at time.Time) engine.Nudge {
	return engine.Nudge{
		ID:      id,
		Kind:    engine.KindGuru,
		Title:   "Set today's intention",
		Message: "One sentence <is> enough",
		TTL:     12 * time.Second,
		Rule:    rule,
		Key:     "intention_missing_2026-10-15",
		At:      at,
		Seq:     seq,
	}
}

func TestWriteNudge_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	n := testNudge("n-1", "missing_intention", 1, at0)
	require.NoError(t, s.WriteNudge(ctx, "sess-1", "s1", n))
	require.NoError(t, s.WriteNudge(ctx, "sess-1", "s1", n), "re-delivery is ignored")

	records, err := s.History(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "sess-1", r.SessionID)
	assert.Equal(t, "s1", r.SubjectID)
	assert.Equal(t, n.ID, r.ID)
	assert.Equal(t, n.Kind, r.Kind)
	assert.Equal(t, n.TTL, r.TTL)
	assert.Equal(t, n.Key, r.Key)
	assert.True(t, r.At.Equal(at0))
	assert.Len(t, r.Digest, 64)

	var payload string
	require.NoError(t, s.db.QueryRow("SELECT payload FROM nudges WHERE id = 'n-1'").Scan(&payload))
	assert.Equal(t,
		`{"at":"2026-10-15T10:00:00Z","id":"n-1","key":"intention_missing_2026-10-15","kind":"guru",`+
			`"message":"One sentence <is> enough","rule":"missing_intention","seq":1,"title":"Set today's intention","ttlMs":12000}`,
		payload)
}

func TestHistory_FiltersAndOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteNudge(ctx, "sess-1", "s1", testNudge("c", "anniversary", 3, at0.Add(2*time.Hour))))
	require.NoError(t, s.WriteNudge(ctx, "sess-1", "s1", testNudge("a", "missing_intention", 1, at0)))
	require.NoError(t, s.WriteNudge(ctx, "sess-1", "s2", testNudge("b", "missing_intention", 2, at0.Add(time.Hour))))

	ids := func(rs []Record) []string {
		var out []string
		for _, r := range rs {
			out = append(out, r.ID)
		}
		return out
	}

	all, err := s.History(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(all))

	bySubject, err := s.History(ctx, Query{SubjectID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids(bySubject))

	byRule, err := s.History(ctx, Query{Rule: "missing_intention"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(byRule))

	since, err := s.History(ctx, Query{Since: at0.Add(30 * time.Minute), Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(since))

	none, err := s.History(ctx, Query{SessionID: "other"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestContentDigest_IgnoresTiming(t *testing.T) {
	a, err := ContentDigest(testNudge("1", "r", 1, at0))
	require.NoError(t, err)
	b, err := ContentDigest(testNudge("2", "r", 9, at0.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other := testNudge("1", "r", 1, at0)
	other.Title = "different"
	c, err := ContentDigest(other)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
