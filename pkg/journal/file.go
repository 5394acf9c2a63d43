package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// maxLineSize bounds a single JSONL record, which holds at most one pledge text.
const maxLineSize = 16 << 20

// File stores entries as JSON lines in a single file.
//
// A failed Append truncates the file back to its previous length, so a line
// that was written but not synced never reappears on replay.
type File struct {
	path string

	mu   sync.Mutex
	file *os.File
	// broken is set when a failed append could not be rolled back.
	broken error
	// sync flushes the file; replaced in tests.
	sync func(*os.File) error
}

// OpenFile opens (creating if needed) the journal file at path.
func OpenFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	return &File{path: path, file: f, sync: (*os.File).Sync}, nil
}

// Append implements Journal. The write is synced before returning.
func (j *File) Append(_ context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return ErrClosed
	}
	if j.broken != nil {
		return j.broken
	}

	info, err := j.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat journal: %w", err)
	}
	offset := info.Size()

	if _, err := j.file.Write(data); err != nil {
		return j.rollback(offset, fmt.Errorf("failed to write entry: %w", err))
	}
	if err := j.sync(j.file); err != nil {
		return j.rollback(offset, fmt.Errorf("failed to sync journal: %w", err))
	}
	return nil
}

// rollback truncates the file to offset after a failed append. If that fails
// too the journal refuses further appends; the caller must restart and
// replay.
func (j *File) rollback(offset int64, cause error) error {
	err := j.file.Truncate(offset)
	if err == nil {
		err = j.sync(j.file)
	}
	if err != nil {
		j.broken = fmt.Errorf("journal needs recovery after failed append: %w (rollback: %v)", cause, err)
		return j.broken
	}
	return cause
}

// Replay implements Journal.
func (j *File) Replay(ctx context.Context, fn func(Entry) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		return fmt.Errorf("failed to open journal for replay: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrCorrupt, line, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	return nil
}

// Close implements Journal.
func (j *File) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}
