package outbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, maxAttempts uint32) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), maxAttempts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOutbox_PutAndGet(t *testing.T) {
	s := openStore(t, 0)

	require.NoError(t, s.Put(1, []byte(`{"seq":1}`)))

	e, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, StatePending, e.State)
	assert.Equal(t, uint32(0), e.Attempts)
	assert.Equal(t, int64(0), e.LastAttempt)
	assert.JSONEq(t, `{"seq":1}`, string(e.Payload))

	_, err = s.Get(2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOutbox_MarkSent(t *testing.T) {
	s := openStore(t, 0)
	require.NoError(t, s.Put(7, []byte(`{}`)))

	e, err := s.MarkSent(7)
	require.NoError(t, err)
	assert.Equal(t, StateSent, e.State)
	assert.Equal(t, uint32(1), e.Attempts)
	assert.Positive(t, e.LastAttempt)
}

func TestOutbox_FailedAttemptsExhaustBudget(t *testing.T) {
	s := openStore(t, 2)
	require.NoError(t, s.Put(3, []byte(`{}`)))

	e, err := s.MarkFailed(3)
	require.NoError(t, err)
	assert.Equal(t, StatePending, e.State)
	assert.Equal(t, uint32(1), e.Attempts)

	e, err = s.MarkFailed(3)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, e.State)
	assert.Equal(t, uint32(2), e.Attempts)
}

func TestOutbox_ScanByState(t *testing.T) {
	s := openStore(t, 0)
	require.NoError(t, s.Put(5, []byte(`{"n":5}`)))
	require.NoError(t, s.Put(2, []byte(`{"n":2}`)))
	require.NoError(t, s.Put(9, []byte(`{"n":9}`)))
	_, err := s.MarkSent(5)
	require.NoError(t, err)

	var seqs []uint64
	require.NoError(t, s.ScanByState(StatePending, func(seq uint64, e Entry) error {
		seqs = append(seqs, seq)
		return nil
	}))
	// Zero-padded keys keep the scan in sequence order.
	assert.Equal(t, []uint64{2, 9}, seqs)

	seqs = nil
	require.NoError(t, s.ScanByState(StateSent, func(seq uint64, e Entry) error {
		seqs = append(seqs, seq)
		return nil
	}))
	assert.Equal(t, []uint64{5}, seqs)
}

func TestOutbox_Delete(t *testing.T) {
	s := openStore(t, 0)
	require.NoError(t, s.Put(4, []byte(`{}`)))
	require.NoError(t, s.Delete(4))

	_, err := s.Get(4)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOutbox_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, 0)
	require.NoError(t, err)
	require.NoError(t, s.Put(11, []byte(`{"n":11}`)))
	_, err = s.MarkSent(11)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dir, 0)
	require.NoError(t, err)
	defer s.Close()

	e, err := s.Get(11)
	require.NoError(t, err)
	assert.Equal(t, StateSent, e.State)
	assert.Equal(t, uint32(1), e.Attempts)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "sent", StateSent.String())
	assert.Equal(t, "failed", StateFailed.String())
}
