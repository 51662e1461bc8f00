package audit_test

import (
	"testing"
	"time"

	"github.com/rpggio/fabtrack/internal/domain/audit"
	"github.com/stretchr/testify/require"
)

func chain(t *testing.T, n int, at time.Time) []audit.Entry {
	t.Helper()
	var out []audit.Entry
	var prev *audit.Entry
	for i := 0; i < n; i++ {
		e, err := audit.Next(prev, audit.Draft{
			EntityType: audit.EntityActivity,
			EntityID:   "a1",
			Action:     "progress_updated",
			PriorState: "InProgress",
			NewState:   "InProgress",
			ActorID:    "worker",
			Details:    map[string]string{"progress": "40"},
		}, "e", at)
		require.NoError(t, err)
		out = append(out, e)
		prev = &out[len(out)-1]
	}
	return out
}

func TestNext_SequenceAndMonotonicTime(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := chain(t, 3, at)
	require.Equal(t, int64(1), entries[0].Seq)
	require.Empty(t, entries[0].PrevHash)
	require.Equal(t, int64(3), entries[2].Seq)
	require.Equal(t, entries[1].Hash, entries[2].PrevHash)
	require.True(t, entries[1].Timestamp.After(entries[0].Timestamp))
	require.True(t, entries[2].Timestamp.After(entries[1].Timestamp))
	require.NoError(t, audit.Verify(entries))
}

func TestDigest_Deterministic(t *testing.T) {
	e := audit.Entry{
		EntityType: audit.EntityPanel,
		EntityID:   "p1",
		Seq:        1,
		Details:    map[string]string{"b": "2", "a": "1", "c": "3"},
		Timestamp:  time.Unix(1700000000, 0),
	}
	h1, err := audit.Digest(e)
	require.NoError(t, err)
	e.Details = map[string]string{"c": "3", "a": "1", "b": "2"}
	h2, err := audit.Digest(e)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
	require.Len(t, h1, 64)
}

func TestVerify_DetectsTampering(t *testing.T) {
	entries := chain(t, 3, time.Now())
	entries[1].NewState = "Completed"
	err := audit.Verify(entries)
	require.ErrorIs(t, err, audit.ErrChainBroken)
	var ce *audit.ChainError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, int64(2), ce.Seq)

	entries = chain(t, 3, time.Now())
	entries = append(entries[:1], entries[2:]...)
	require.ErrorIs(t, audit.Verify(entries), audit.ErrChainBroken)
}
