package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, j *Journal) []Record {
	t.Helper()
	var recs []Record
	require.NoError(t, j.Replay(func(r Record) error {
		recs = append(recs, r)
		return nil
	}))
	return recs
}

func TestJournal_AppendReplayRoundtrip(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(Options{Dir: dir})
	require.NoError(t, err)

	seq, err := j.Append(RecordSubmit, []byte(`{"id":1}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
	seq, err = j.Append(RecordCancel, []byte(`{"id":1}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)
	seq, err = j.Append(RecordModify, []byte(`{"id":1,"qty":5}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq)

	recs := collect(t, j)
	require.Len(t, recs, 3)
	assert.Equal(t, RecordSubmit, recs[0].Type)
	assert.Equal(t, RecordCancel, recs[1].Type)
	assert.Equal(t, RecordModify, recs[2].Type)
	assert.Equal(t, []byte(`{"id":1,"qty":5}`), recs[2].Payload)
	for i, r := range recs {
		assert.Equal(t, uint64(i+1), r.Seq)
		assert.False(t, r.Time.IsZero())
	}
	require.NoError(t, j.Close())

	// A fresh handle sees the same log and keeps numbering from the end.
	j2, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	defer j2.Close()

	assert.Equal(t, uint64(3), j2.Seq())
	reread := collect(t, j2)
	require.Len(t, reread, 3)
	for i := range recs {
		assert.Equal(t, recs[i].Time.UnixNano(), reread[i].Time.UnixNano())
	}

	seq, err = j2.Append(RecordSubmit, []byte(`{"id":2}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(4), seq)
}

func TestJournal_Rotation(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(Options{Dir: dir, SegmentSize: 64})
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		_, err := j.Append(RecordSubmit, fmt.Appendf(nil, `{"i":%d}`, i))
		require.NoError(t, err)
	}
	require.NoError(t, j.Close())

	segs, err := filepath.Glob(filepath.Join(dir, "segment-*.wal"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(segs), 2)

	j, err = Open(Options{Dir: dir, SegmentSize: 64})
	require.NoError(t, err)
	defer j.Close()

	recs := collect(t, j)
	require.Len(t, recs, 6)
	for i, r := range recs {
		assert.Equal(t, uint64(i+1), r.Seq)
	}
}

func TestJournal_TornTailRecovered(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := j.Append(RecordSubmit, fmt.Appendf(nil, `{"i":%d}`, i))
		require.NoError(t, err)
	}
	require.NoError(t, j.Close())

	// Cut into the last record's checksum, as a crash mid-write would.
	path := filepath.Join(dir, "segment-000001.wal")
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-3))

	j, err = Open(Options{Dir: dir})
	require.NoError(t, err)
	defer j.Close()

	recs := collect(t, j)
	require.Len(t, recs, 2)
	assert.Equal(t, uint64(2), j.Seq())

	// Appending resumes right after the surviving records.
	seq, err := j.Append(RecordCancel, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq)
}

func TestJournal_CorruptFinalizedSegmentFails(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(Options{Dir: dir, SegmentSize: 48})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := j.Append(RecordSubmit, fmt.Appendf(nil, `{"i":%d}`, i))
		require.NoError(t, err)
	}
	require.NoError(t, j.Close())

	segs, err := filepath.Glob(filepath.Join(dir, "segment-*.wal"))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(segs), 2)

	// Flip a payload byte in an already finalized segment.
	f, err := os.OpenFile(segs[0], os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xff}, frameHeaderSize+1)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(Options{Dir: dir, SegmentSize: 48})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestJournal_ReplayEmpty(t *testing.T) {
	j, err := Open(Options{Dir: t.TempDir()})
	require.NoError(t, err)
	defer j.Close()

	assert.Empty(t, collect(t, j))
	assert.Equal(t, uint64(0), j.Seq())
}

func TestJournal_ReplayCallbackErrorStops(t *testing.T) {
	j, err := Open(Options{Dir: t.TempDir()})
	require.NoError(t, err)
	defer j.Close()

	for i := 0; i < 3; i++ {
		_, err := j.Append(RecordSubmit, fmt.Appendf(nil, `{"i":%d}`, i))
		require.NoError(t, err)
	}

	seen := 0
	err = j.Replay(func(r Record) error {
		seen++
		if seen == 2 {
			return fmt.Errorf("boom")
		}
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 2, seen)
}
