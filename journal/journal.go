// Package journal keeps an append-only log of encoded scene graph updates in
// BadgerDB and replays it into a store.
//
// A Journal is a port.Writer, so it sits behind the textual codec like any
// other output port:
//
//	j, err := journal.Open(journal.Config{Path: "/var/lib/rsg/journal", SyncWrites: true})
//	if err != nil {
//		return err
//	}
//	defer j.Close()
//	store.Dispatcher().Register(jsoncodec.NewEncoder(j), update.WithName("journal"))
//
// After a restart the journal rebuilds the graph:
//
//	n, err := j.Replay(ctx, scene.New())
//
// Each entry is stored under "<prefix><seq>" with a CRC32 of the payload.
package journal

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"os"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/zero-day-ai/rsg/codec/jsoncodec"
	"github.com/zero-day-ai/rsg/port"
	"github.com/zero-day-ai/rsg/rsgerr"
)

var (
	// ErrClosed is returned when operations are called on a closed journal.
	ErrClosed = errors.New("journal is closed")

	// ErrCorrupted is returned when an entry fails its integrity check.
	ErrCorrupted = errors.New("journal entry corrupted (CRC mismatch)")
)

// DefaultPrefix is the key prefix used when Config.Prefix is empty.
const DefaultPrefix = "rsg/journal/"

// Config configures a Journal.
type Config struct {
	// Path is the directory for BadgerDB files. Required unless InMemory.
	Path string

	// InMemory keeps the journal in memory only.
	InMemory bool

	// SyncWrites fsyncs every append.
	SyncWrites bool

	// Prefix scopes the keys, DefaultPrefix when empty.
	Prefix string

	// Logger for journal operations. Default: slog.Default().
	Logger *slog.Logger
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return errors.New("path is required for persistent journal")
	}
	return nil
}

// Journal is an append-only message log. It is safe for concurrent use.
type Journal struct {
	mu     sync.Mutex
	db     *badger.DB
	prefix string
	seq    uint64
	closed bool
	logger *slog.Logger
}

var _ port.Writer = (*Journal)(nil)

// Open opens or creates the journal described by cfg.
func Open(cfg Config) (*Journal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "journal")

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create journal directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	j := &Journal{db: db, prefix: cfg.Prefix, logger: logger}
	if j.seq, err = j.lastSeq(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read journal position: %w", err)
	}
	logger.Debug("journal opened", "path", cfg.Path, "in_memory", cfg.InMemory, "seq", j.seq)
	return j, nil
}

// Write appends b as one entry. Failures are reported as port.StatusFailed.
func (j *Journal) Write(b []byte) (int, int) {
	if _, err := j.Append(context.Background(), b); err != nil {
		j.logger.Warn("entry not journaled", "error", err)
		return port.StatusFailed, 0
	}
	return port.StatusOK, len(b)
}

// Append stores b and returns its sequence number.
func (j *Journal) Append(ctx context.Context, b []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return 0, ErrClosed
	}

	seq := j.seq + 1
	err := j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(j.key(seq), encodeEntry(b))
	})
	if err != nil {
		return 0, fmt.Errorf("append entry %d: %w", seq, err)
	}
	j.seq = seq
	return seq, nil
}

// Len returns the sequence number of the last entry.
func (j *Journal) Len() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

// Entries returns all payloads in append order.
func (j *Journal) Entries(ctx context.Context) ([][]byte, error) {
	var out [][]byte
	err := j.each(ctx, func(_ uint64, payload []byte) error {
		out = append(out, payload)
		return nil
	})
	return out, err
}

// Replay applies every entry to target in append order and returns the
// number applied. It stops at the first entry that fails.
func (j *Journal) Replay(ctx context.Context, target jsoncodec.Target) (int, error) {
	applied := 0
	err := j.each(ctx, func(seq uint64, payload []byte) error {
		if err := jsoncodec.ApplyJSON(ctx, payload, target); err != nil {
			return rsgerr.Wrap("journal.Replay", rsgerr.KindDecode, err).WithContext(map[string]any{"seq": seq})
		}
		applied++
		return nil
	})
	if err == nil {
		j.logger.Info("journal replayed", "entries", applied)
	}
	return applied, err
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

func (j *Journal) each(ctx context.Context, fn func(seq uint64, payload []byte) error) error {
	j.mu.Lock()
	closed := j.closed
	j.mu.Unlock()
	if closed {
		return ErrClosed
	}

	prefix := []byte(j.prefix)
	return j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			seq := binary.BigEndian.Uint64(item.Key()[len(prefix):])

			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			payload, err := decodeEntry(value)
			if err != nil {
				return fmt.Errorf("entry %d: %w", seq, err)
			}
			if err := fn(seq, payload); err != nil {
				return err
			}
		}
		return nil
	})
}

func (j *Journal) lastSeq() (uint64, error) {
	var seq uint64
	prefix := []byte(j.prefix)
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(append(append([]byte{}, prefix...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff))
		if it.ValidForPrefix(prefix) {
			seq = binary.BigEndian.Uint64(it.Item().Key()[len(prefix):])
		}
		return nil
	})
	return seq, err
}

// key orders entries by sequence number under the prefix.
func (j *Journal) key(seq uint64) []byte {
	k := make([]byte, len(j.prefix)+8)
	copy(k, j.prefix)
	binary.BigEndian.PutUint64(k[len(j.prefix):], seq)
	return k
}

func encodeEntry(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out[:4], crc32.ChecksumIEEE(payload))
	copy(out[4:], payload)
	return out
}

func decodeEntry(value []byte) ([]byte, error) {
	if len(value) < 4 {
		return nil, ErrCorrupted
	}
	if binary.BigEndian.Uint32(value[:4]) != crc32.ChecksumIEEE(value[4:]) {
		return nil, ErrCorrupted
	}
	return value[4:], nil
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
