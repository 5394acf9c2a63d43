package journal

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

var badgerPrefix = []byte("journal/")

// Badger stores entries in an embedded badger database keyed by sequence.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens a badger journal in dir. An empty dir keeps the data in
// memory, which is useful for tests.
func OpenBadger(dir string, logger *slog.Logger) (*Badger, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	opts := badger.DefaultOptions(dir).
		WithLogger(&badgerLogger{logger: logger}).
		// INFO is noisy during compaction
		WithLoggingLevel(badger.WARNING)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger journal: %w", err)
	}
	return &Badger{db: db}, nil
}

func badgerKey(seq uint64) []byte {
	key := make([]byte, len(badgerPrefix)+8)
	copy(key, badgerPrefix)
	binary.BigEndian.PutUint64(key[len(badgerPrefix):], seq)
	return key
}

// Append implements Journal. An existing entry with the same sequence is
// never overwritten.
func (j *Badger) Append(_ context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	key := badgerKey(e.Seq)
	return j.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("%w: entry %d already recorded", ErrSequence, e.Seq)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check entry %d: %w", e.Seq, err)
		}
		return txn.Set(key, data)
	})
}

// Replay implements Journal. Big-endian keys iterate in sequence order.
func (j *Badger) Replay(ctx context.Context, fn func(Entry) error) error {
	return j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(badgerPrefix); it.ValidForPrefix(badgerPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				return fmt.Errorf("%w: key %x: %v", ErrCorrupt, it.Item().Key(), err)
			}
			if err := fn(e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close implements Journal.
func (j *Badger) Close() error {
	return j.db.Close()
}

// badgerLogger routes badger's printf-style logging to slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
