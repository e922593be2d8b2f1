package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/composer/internal/model"
)

func TestSession_WriteReadDelete(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext(t)

	rec := SessionRecord{ID: "s1", Model: "census.cue", Source: "names", CreatedSeq: 1}
	require.NoError(t, s.WriteSession(ctx, rec))
	require.NoError(t, s.WriteSession(ctx, rec), "duplicate writes are ignored")

	got, err := s.ReadSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	require.NoError(t, s.WriteSnapshot(ctx, createTestSnapshot("a", "s1", 2, "name")))
	require.NoError(t, s.DeleteSession(ctx, "s1"))

	_, err = s.ReadSession(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
	snaps, err := s.ReadSnapshots(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, snaps, "snapshots cascade with their session")

	assert.ErrorIs(t, s.DeleteSession(ctx, "s1"), ErrNotFound)
}

func TestListSessions_Ordered(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext(t)
	require.NoError(t, s.WriteSession(ctx, SessionRecord{ID: "b", Model: "m", Source: "x", CreatedSeq: 5}))
	require.NoError(t, s.WriteSession(ctx, SessionRecord{ID: "a", Model: "m", Source: "x", CreatedSeq: 5}))
	require.NoError(t, s.WriteSession(ctx, SessionRecord{ID: "c", Model: "m", Source: "x", CreatedSeq: 1}))

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	ids := make([]string, len(sessions))
	for i, rec := range sessions {
		ids[i] = rec.ID
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestSnapshots_RoundTripAndOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext(t)
	require.NoError(t, s.WriteSession(ctx, SessionRecord{ID: "s1", Model: "m", Source: "names", CreatedSeq: 1}))

	third := createTestSnapshot("c", "s1", 4, "name", "state")
	third.Arguments = map[string]string{"home": `'O\'Hare'`}
	third.Query.Pipeline[0].Filters = []model.Filter{{Code: "state = '<CA>'", Kind: model.ExprScalar}}
	require.NoError(t, s.WriteSnapshot(ctx, third))
	require.NoError(t, s.WriteSnapshot(ctx, createTestSnapshot("a", "s1", 2, "name")))
	require.NoError(t, s.WriteSnapshot(ctx, createTestSnapshot("b", "s1", 3)))

	snaps, err := s.ReadSnapshots(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, []int64{2, 3, 4}, []int64{snaps[0].Seq, snaps[1].Seq, snaps[2].Seq})

	got := snaps[2]
	assert.Equal(t, third.Query, got.Query)
	assert.Equal(t, third.Arguments, got.Arguments)
	assert.Equal(t, model.MustFingerprint(third.Query), got.Fingerprint)

	latest, err := s.LatestSnapshot(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "c", latest.ID)

	_, err = s.LatestSnapshot(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindSnapshot(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext(t)
	require.NoError(t, s.WriteSession(ctx, SessionRecord{ID: "s1", Model: "m", Source: "names", CreatedSeq: 1}))
	first := createTestSnapshot("a", "s1", 2, "name")
	require.NoError(t, s.WriteSnapshot(ctx, first))
	require.NoError(t, s.WriteSnapshot(ctx, createTestSnapshot("b", "s1", 3, "name", "state")))
	require.NoError(t, s.WriteSnapshot(ctx, createTestSnapshot("c", "s1", 4, "name")))

	found, err := s.FindSnapshot(ctx, "s1", model.MustFingerprint(first.Query))
	require.NoError(t, err)
	assert.Equal(t, "a", found.ID)

	_, err = s.FindSnapshot(ctx, "s1", "deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMaxSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext(t)

	seq, err := s.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq)

	require.NoError(t, s.WriteSession(ctx, SessionRecord{ID: "s1", Model: "m", Source: "names", CreatedSeq: 3}))
	seq, err = s.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), seq)

	require.NoError(t, s.WriteSnapshot(ctx, createTestSnapshot("a", "s1", 7, "name")))
	seq, err = s.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), seq)
}
