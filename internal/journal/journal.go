// Package journal is a segmented append-only command log. Every accepted
// gateway command is framed, checksummed and written before it reaches the
// engine, so a restart can rebuild identical state by replaying the log.
package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Frame layout: [type:1][seq:8][time:8][len:4][payload][crc:4], integers
// little-endian, CRC-32/IEEE over everything before the checksum itself.
const (
	frameHeaderSize = 1 + 8 + 8 + 4
	frameCRCSize    = 4

	segmentPattern = "segment-%06d.wal"
	segmentSuffix  = ".wal"
	segmentPrefix  = "segment-"

	defaultSegmentSize = 16 << 20

	// A torn header can carry a garbage length.
	maxPayloadSize = 16 << 20
)

// ErrCorrupt reports a frame whose checksum or length does not hold in a
// finalized part of the log.
var ErrCorrupt = errors.New("journal: corrupt frame")

var errTornTail = errors.New("journal: torn tail")

// RecordType tags what kind of command a record holds.
type RecordType uint8

const (
	RecordSubmit RecordType = iota + 1
	RecordCancel
	RecordModify
)

// Record is one journaled command.
type Record struct {
	Type    RecordType
	Seq     uint64
	Time    time.Time
	Payload []byte
}

// Options configures a Journal.
type Options struct {
	Dir          string
	SegmentSize  int64 // rotation threshold in bytes, default 16 MiB
	SyncOnAppend bool  // fsync after every record
}

// Journal appends framed records to numbered segment files.
type Journal struct {
	mu sync.Mutex

	dir          string
	segmentSize  int64
	syncOnAppend bool

	file      *os.File
	writer    *bufio.Writer
	segmentID int
	written   int64
	seq       uint64
}

// Open prepares the journal directory, recovers the tail of the newest
// segment and positions the log for appending.
func Open(opts Options) (*Journal, error) {
	if opts.Dir == "" {
		return nil, errors.New("journal: dir required")
	}
	if opts.SegmentSize <= 0 {
		opts.SegmentSize = defaultSegmentSize
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}

	j := &Journal{
		dir:          opts.Dir,
		segmentSize:  opts.SegmentSize,
		syncOnAppend: opts.SyncOnAppend,
	}

	names, err := listSegments(opts.Dir)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		j.segmentID = 1
		if err := j.openSegment(); err != nil {
			return nil, err
		}
		return j, nil
	}

	// Finalized segments must parse end to end; only the newest one may
	// carry a torn final record from a crash mid-append.
	for _, name := range names[:len(names)-1] {
		lastSeq, _, err := scanSegment(filepath.Join(opts.Dir, name), nil)
		if err != nil {
			return nil, fmt.Errorf("journal: segment %s: %w", name, err)
		}
		if lastSeq != 0 {
			j.seq = lastSeq
		}
	}

	// The newest segment is recovered rather than rejected: everything up
	// to the first bad frame survives, the rest is cut off.
	last := names[len(names)-1]
	lastPath := filepath.Join(opts.Dir, last)
	lastSeq, validBytes, err := scanSegment(lastPath, nil)
	switch {
	case errors.Is(err, errTornTail) || errors.Is(err, ErrCorrupt):
		log.Printf("[journal] truncating torn tail of %s at %d bytes", last, validBytes)
		if err := os.Truncate(lastPath, validBytes); err != nil {
			return nil, fmt.Errorf("journal: truncate %s: %w", last, err)
		}
	case err != nil:
		return nil, fmt.Errorf("journal: segment %s: %w", last, err)
	}
	if lastSeq != 0 {
		j.seq = lastSeq
	}

	id, err := segmentID(last)
	if err != nil {
		return nil, err
	}
	j.segmentID = id
	j.written = validBytes

	f, err := os.OpenFile(lastPath, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", last, err)
	}
	j.file = f
	j.writer = bufio.NewWriterSize(f, 1<<16)
	return j, nil
}

func (j *Journal) openSegment() error {
	path := filepath.Join(j.dir, fmt.Sprintf(segmentPattern, j.segmentID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open %s: %w", path, err)
	}
	j.file = f
	j.writer = bufio.NewWriterSize(f, 1<<16)
	j.written = 0
	return nil
}

// Append frames the payload, assigns the next record sequence and writes
// it out. The data reaches the OS before Append returns; SyncOnAppend adds
// an fsync.
func (j *Journal) Append(typ RecordType, payload []byte) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return 0, errors.New("journal: closed")
	}

	frameSize := int64(frameHeaderSize + len(payload) + frameCRCSize)
	if j.written > 0 && j.written+frameSize > j.segmentSize {
		if err := j.rotate(); err != nil {
			return 0, err
		}
	}

	j.seq++
	rec := Record{Type: typ, Seq: j.seq, Time: time.Now(), Payload: payload}
	if err := writeFrame(j.writer, rec); err != nil {
		j.seq--
		return 0, fmt.Errorf("journal: write: %w", err)
	}
	if err := j.writer.Flush(); err != nil {
		j.seq--
		return 0, fmt.Errorf("journal: flush: %w", err)
	}
	if j.syncOnAppend {
		if err := j.file.Sync(); err != nil {
			return 0, fmt.Errorf("journal: sync: %w", err)
		}
	}
	j.written += frameSize
	return rec.Seq, nil
}

func (j *Journal) rotate() error {
	if err := j.writer.Flush(); err != nil {
		return fmt.Errorf("journal: flush: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("journal: sync: %w", err)
	}
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("journal: close segment: %w", err)
	}
	j.segmentID++
	log.Printf("[journal] rotating to segment %06d", j.segmentID)
	return j.openSegment()
}

// Replay walks every segment in order and hands each record to fn. A torn
// final record is logged and skipped; any other malformed frame stops the
// replay with an error, as does an error from fn.
func (j *Journal) Replay(fn func(Record) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.writer != nil {
		if err := j.writer.Flush(); err != nil {
			return fmt.Errorf("journal: flush: %w", err)
		}
	}

	names, err := listSegments(j.dir)
	if err != nil {
		return err
	}
	for i, name := range names {
		_, _, err := scanSegment(filepath.Join(j.dir, name), fn)
		if err == nil {
			continue
		}
		if errors.Is(err, errTornTail) && i == len(names)-1 {
			log.Printf("[journal] replay: ignoring torn tail of %s", name)
			return nil
		}
		return fmt.Errorf("journal: segment %s: %w", name, err)
	}
	return nil
}

// Seq returns the sequence of the most recently appended record.
func (j *Journal) Seq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

// Sync flushes buffered frames and fsyncs the current segment.
func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return errors.New("journal: closed")
	}
	if err := j.writer.Flush(); err != nil {
		return fmt.Errorf("journal: flush: %w", err)
	}
	return j.file.Sync()
}

// Close flushes and closes the current segment.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	if err := j.writer.Flush(); err != nil {
		return fmt.Errorf("journal: flush: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("journal: sync: %w", err)
	}
	err := j.file.Close()
	j.file = nil
	j.writer = nil
	return err
}

func writeFrame(w io.Writer, rec Record) error {
	buf := make([]byte, frameHeaderSize+len(rec.Payload)+frameCRCSize)
	buf[0] = byte(rec.Type)
	binary.LittleEndian.PutUint64(buf[1:9], rec.Seq)
	binary.LittleEndian.PutUint64(buf[9:17], uint64(rec.Time.UnixNano()))
	binary.LittleEndian.PutUint32(buf[17:21], uint32(len(rec.Payload)))
	copy(buf[frameHeaderSize:], rec.Payload)
	sum := crc32.ChecksumIEEE(buf[:frameHeaderSize+len(rec.Payload)])
	binary.LittleEndian.PutUint32(buf[frameHeaderSize+len(rec.Payload):], sum)
	_, err := w.Write(buf)
	return err
}

// scanSegment reads frames until EOF, calling fn for each when non-nil.
// It returns the last record sequence seen and how many bytes of the file
// held complete, valid frames.
func scanSegment(path string, fn func(Record) error) (lastSeq uint64, validBytes int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<16)
	var header [frameHeaderSize]byte
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if err == io.EOF {
				return lastSeq, validBytes, nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return lastSeq, validBytes, errTornTail
			}
			return lastSeq, validBytes, err
		}

		payloadLen := binary.LittleEndian.Uint32(header[17:21])
		if payloadLen > maxPayloadSize {
			return lastSeq, validBytes, errTornTail
		}

		body := make([]byte, int(payloadLen)+frameCRCSize)
		if _, err := io.ReadFull(r, body); err != nil {
			if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
				return lastSeq, validBytes, errTornTail
			}
			return lastSeq, validBytes, err
		}

		payload := body[:payloadLen]
		sum := crc32.ChecksumIEEE(header[:])
		sum = crc32.Update(sum, crc32.IEEETable, payload)
		if sum != binary.LittleEndian.Uint32(body[payloadLen:]) {
			return lastSeq, validBytes, ErrCorrupt
		}

		rec := Record{
			Type:    RecordType(header[0]),
			Seq:     binary.LittleEndian.Uint64(header[1:9]),
			Time:    time.Unix(0, int64(binary.LittleEndian.Uint64(header[9:17]))),
			Payload: payload,
		}
		if fn != nil {
			if err := fn(rec); err != nil {
				return lastSeq, validBytes, err
			}
		}
		lastSeq = rec.Seq
		validBytes += int64(frameHeaderSize) + int64(payloadLen) + frameCRCSize
	}
}

func listSegments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("journal: read dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, segmentPrefix) && strings.HasSuffix(name, segmentSuffix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func segmentID(name string) (int, error) {
	raw := strings.TrimSuffix(strings.TrimPrefix(name, segmentPrefix), segmentSuffix)
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("journal: bad segment name %q", name)
	}
	return id, nil
}
