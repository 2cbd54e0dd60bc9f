package wal

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"mde/internal/enginerr"
	"mde/internal/metrics"
)

// Path derives the WAL sidecar path for a data file path, per §4.5:
// same path with the extension replaced by ".wal".
func Path(dataPath string) string {
	if i := strings.LastIndexByte(dataPath, '.'); i >= 0 {
		return dataPath[:i] + ".wal"
	}
	return dataPath + ".wal"
}

// Log is the append-only write-ahead log.
type Log struct {
	path    string
	metrics *metrics.Store
	log     *logrus.Logger

	mu             sync.RWMutex
	file           *os.File
	cursor         uint64
	lastCheckpoint uint64
	hasCheckpoint  bool
}

// Options configures Open.
type Options struct {
	Metrics *metrics.Store
	Log     *logrus.Logger
}

// Open opens (creating if absent) the WAL file at path and scans it to
// recover the sequence cursor and last checkpoint, per §4.5. A partial
// trailing record terminates the scan cleanly rather than erroring;
// the next Append overwrites the garbage tail.
func Open(path string, opts Options) (*Log, error) {
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}

	l := &Log{path: path, file: f, metrics: opts.Metrics, log: opts.Log}
	if err := l.scan(); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

// scan walks the file once to establish the cursor and checkpoint
// position, truncating cleanly at the first malformed or partial
// record — grounded on wal_manager.findLargestLSN's tolerant read loop.
func (l *Log) scan() error {
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("wal: seek: %w", err)
	}
	r := &countingReader{r: l.file}
	var good int64 // offset just past the last fully validated frame

	for {
		var lenBuf [4]byte
		n, err := io.ReadFull(r, lenBuf[:])
		if err != nil || n < 4 {
			break
		}
		bodyLen := binary.LittleEndian.Uint32(lenBuf[:])
		body := make([]byte, bodyLen)
		n, err = io.ReadFull(r, body)
		if err != nil || uint32(n) < bodyLen {
			break
		}
		var crcBuf [4]byte
		n, err = io.ReadFull(r, crcBuf[:])
		if err != nil || n < 4 {
			break
		}
		crc := binary.LittleEndian.Uint32(crcBuf[:])
		rec, err := decodeRecord(body)
		if err != nil {
			break
		}
		if calculateCRC(rec.Sequence, body) != crc {
			break
		}
		if rec.Sequence > l.cursor {
			l.cursor = rec.Sequence
		}
		if rec.Op == OpCheckpoint {
			l.lastCheckpoint = rec.Sequence
			l.hasCheckpoint = true
		}
		good = r.n
	}
	// Truncate any trailing garbage discovered so the next append
	// starts from a known-good offset.
	if err := l.file.Truncate(good); err != nil {
		return fmt.Errorf("wal: truncate trailing garbage: %w", err)
	}
	if _, err := l.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("wal: seek to end: %w", err)
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Append assigns the next sequence number, frames the record as
// len|body|crc, and writes it at EOF without fsyncing, per §4.5.
func (l *Log) Append(r Record) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cursor++
	r.Sequence = l.cursor
	if r.TimestampMs == 0 {
		r.TimestampMs = nowMillis()
	}

	body := r.encode()
	crc := calculateCRC(r.Sequence, body)

	frame := make([]byte, 4+len(body)+4)
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(body)))
	copy(frame[4:4+len(body)], body)
	binary.LittleEndian.PutUint32(frame[4+len(body):], crc)

	if _, err := l.file.Write(frame); err != nil {
		l.cursor--
		return Record{}, fmt.Errorf("wal: append: %w", err)
	}
	metrics.Inc(l.metrics.WALAppends)
	return r, nil
}

// Flush fsyncs the log file — the durability barrier §4.5/§4.6 require
// before a transaction is reported committed.
func (l *Log) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("wal: fsync: %w", err)
	}
	metrics.Inc(l.metrics.WALSyncs)
	return nil
}

// ReadAll performs a full linear scan under a shared lock.
func (l *Log) ReadAll() ([]Record, error) {
	return l.ReadAfter(0)
}

// ReadAfter returns every record with sequence > seq.
func (l *Log) ReadAfter(seq uint64) ([]Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("wal: seek: %w", err)
	}
	defer l.file.Seek(0, io.SeekEnd)

	var out []Record
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(l.file, lenBuf[:]); err != nil {
			break
		}
		bodyLen := binary.LittleEndian.Uint32(lenBuf[:])
		body := make([]byte, bodyLen)
		if _, err := io.ReadFull(l.file, body); err != nil {
			break
		}
		var crcBuf [4]byte
		if _, err := io.ReadFull(l.file, crcBuf[:]); err != nil {
			break
		}
		rec, err := decodeRecord(body)
		if err != nil {
			break
		}
		if calculateCRC(rec.Sequence, body) != binary.LittleEndian.Uint32(crcBuf[:]) {
			// Folded into the same handling as a truncated frame: stop
			// the scan here rather than trusting a corrupted record.
			l.log.WithField("sequence", rec.Sequence).Warn("wal: checksum mismatch, truncating read")
			break
		}
		if rec.Sequence > seq {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Checkpoint appends a Checkpoint record at the current cursor and
// remembers its sequence.
func (l *Log) Checkpoint() (Record, error) {
	rec, err := l.Append(Record{Op: OpCheckpoint})
	if err != nil {
		return Record{}, err
	}
	l.mu.Lock()
	l.lastCheckpoint = rec.Sequence
	l.hasCheckpoint = true
	l.mu.Unlock()
	return rec, nil
}

// TruncateAfterCheckpoint is permanently refused: the elected design
// (§9(b)) keeps the B+ tree in memory only, so the WAL is the sole
// durable record of every committed mutation and can never be trimmed
// without first replaying its committed effects into a persisted tree
// — which this build does not have.
func (l *Log) TruncateAfterCheckpoint() error {
	return fmt.Errorf("wal: truncate refused, tree is not persisted (see design notes on §9(b)): %w", enginerr.ErrFramingCorruption)
}

// Clear truncates the log to zero length and resets the cursor.
func (l *Log) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("wal: clear: %w", err)
	}
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("wal: seek: %w", err)
	}
	l.cursor = 0
	l.lastCheckpoint = 0
	l.hasCheckpoint = false
	return nil
}

// Cursor reports the current sequence cursor.
func (l *Log) Cursor() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cursor
}

// Close syncs and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Sync(); err != nil {
		l.log.WithError(err).Warn("wal: sync during close failed")
	}
	return l.file.Close()
}
