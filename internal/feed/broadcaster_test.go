package feed

import (
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathanyu/matching-engine/internal/outbox"
)

func mockProducer(t *testing.T) *mocks.SyncProducer {
	t.Helper()
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	return mocks.NewSyncProducer(t, cfg)
}

func TestBroadcaster_SweepsPendingEntries(t *testing.T) {
	store := openStore(t, 0)
	require.NoError(t, store.Put(1, []byte(`{"symbol":"ACME","seq":1}`)))
	require.NoError(t, store.Put(2, []byte(`{"symbol":"ACME","seq":2}`)))

	mp := mockProducer(t)
	mp.ExpectSendMessageAndSucceed()
	mp.ExpectSendMessageAndSucceed()

	b := newBroadcaster(store, mp, "trades", time.Nanosecond)
	b.sweep()

	for _, seq := range []uint64{1, 2} {
		e, err := store.Get(seq)
		require.NoError(t, err)
		assert.Equal(t, outbox.StateSent, e.State, "seq %d", seq)
		assert.Equal(t, uint32(1), e.Attempts, "seq %d", seq)
	}
	require.NoError(t, mp.Close())
}

func TestBroadcaster_SkipsRecentAttempts(t *testing.T) {
	store := openStore(t, 0)
	require.NoError(t, store.Put(1, []byte(`{"symbol":"ACME"}`)))
	_, err := store.MarkFailed(1)
	require.NoError(t, err)

	// A long retry delay makes the fresh failure not yet due; the mock
	// producer has no expectations, so any send would fail the test.
	mp := mockProducer(t)
	b := newBroadcaster(store, mp, "trades", time.Hour)
	b.sweep()

	e, err := store.Get(1)
	require.NoError(t, err)
	assert.Equal(t, outbox.StatePending, e.State)
	assert.Equal(t, uint32(1), e.Attempts)
	require.NoError(t, mp.Close())
}

func TestBroadcaster_ParksEntryAfterMaxAttempts(t *testing.T) {
	store := openStore(t, 2)
	require.NoError(t, store.Put(9, []byte(`{"symbol":"ACME"}`)))
	_, err := store.MarkFailed(9)
	require.NoError(t, err)

	mp := mockProducer(t)
	mp.ExpectSendMessageAndFail(errors.New("broker down"))

	time.Sleep(time.Millisecond)
	b := newBroadcaster(store, mp, "trades", time.Nanosecond)
	b.sweep()

	e, err := store.Get(9)
	require.NoError(t, err)
	assert.Equal(t, outbox.StateFailed, e.State)
	assert.Equal(t, uint32(2), e.Attempts)

	// Parked entries are no longer swept.
	b.sweep()
	require.NoError(t, mp.Close())
}

func TestBroadcaster_IgnoresSentEntries(t *testing.T) {
	store := openStore(t, 0)
	require.NoError(t, store.Put(3, []byte(`{"symbol":"ACME"}`)))
	_, err := store.MarkSent(3)
	require.NoError(t, err)

	mp := mockProducer(t)
	b := newBroadcaster(store, mp, "trades", time.Nanosecond)
	b.sweep()
	require.NoError(t, mp.Close())
}

func TestSymbolOf(t *testing.T) {
	assert.Equal(t, "ACME", symbolOf([]byte(`{"symbol":"ACME","seq":4}`)))
	assert.Equal(t, "unknown", symbolOf([]byte(`not json`)))
	assert.Equal(t, "unknown", symbolOf([]byte(`{}`)))
}
