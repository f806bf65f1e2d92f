package ledger

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/Mindburn-Labs/deedchain/pkg/deed"
)

// FileBackend stores one canonical JSON record per line in an append-only
// file. Each append is written and fsynced before it is acknowledged.
type FileBackend struct {
	path   string
	mu     sync.Mutex
	f      *os.File
	logger *slog.Logger

	// committed is the byte offset just past the last complete line.
	// Anything beyond it is an uncommitted tail and is overwritten by the
	// next append.
	committed int64
	dirty     bool
	scanned   bool
}

func NewFileBackend(path string) (*FileBackend, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, &IOError{Op: "mkdir", Err: err}
		}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, &IOError{Op: "open", Err: err}
	}
	return &FileBackend{
		path:   path,
		f:      f,
		logger: slog.Default().With("component", "ledger.file", "path", path),
	}, nil
}

func (b *FileBackend) Path() string { return b.path }

func (b *FileBackend) Load(ctx context.Context) ([]deed.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.f == nil {
		return nil, ErrClosed
	}
	return b.scanLocked(ctx)
}

func (b *FileBackend) scanLocked(ctx context.Context) ([]deed.Record, error) {
	if _, err := b.f.Seek(0, io.SeekStart); err != nil {
		return nil, &IOError{Op: "seek", Err: err}
	}
	records, committed, partial, err := ReadRecords(b.f)
	if err != nil {
		return nil, err
	}
	b.committed = committed
	b.scanned = true
	if partial {
		b.dirty = true
		b.logger.WarnContext(ctx, "ignoring incomplete trailing record", "offset", committed)
	}
	return records, nil
}

// ReadRecords decodes newline-terminated records from r. It returns the
// byte offset after the last complete line and whether an unterminated tail
// was skipped.
func ReadRecords(r io.Reader) (records []deed.Record, committed int64, partial bool, err error) {
	br := bufio.NewReader(r)
	records = make([]deed.Record, 0)
	for line := 1; ; line++ {
		raw, readErr := br.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, committed, false, &IOError{Op: "read", Err: readErr}
		}
		if errors.Is(readErr, io.EOF) {
			// An unterminated tail was never acknowledged.
			return records, committed, len(raw) > 0, nil
		}

		body := bytes.TrimRight(raw, "\r\n")
		if len(body) > 0 {
			rec, err := deed.Decode(body)
			if err != nil {
				return nil, committed, false, fmt.Errorf("%w: line %d: %v", ErrCorrupt, line, err)
			}
			records = append(records, rec)
		}
		committed += int64(len(raw))
	}
}

func (b *FileBackend) Append(ctx context.Context, r deed.Record) error {
	line, err := deed.Encode(r)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.f == nil {
		return &IOError{Op: "append", RecordID: r.ID, Err: ErrClosed}
	}
	if !b.scanned {
		if _, err := b.scanLocked(ctx); err != nil {
			return err
		}
	}

	if b.dirty {
		if err := b.f.Truncate(b.committed); err != nil {
			return &IOError{Op: "truncate", RecordID: r.ID, Err: err}
		}
		b.dirty = false
	}

	if _, err := b.f.WriteAt(line, b.committed); err != nil {
		b.dirty = true
		return &IOError{Op: "write", RecordID: r.ID, Err: err}
	}
	if err := b.f.Sync(); err != nil {
		b.dirty = true
		return &IOError{Op: "sync", RecordID: r.ID, Err: err}
	}
	b.committed += int64(len(line))
	return nil
}

func (b *FileBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.f == nil {
		return nil
	}
	err := b.f.Close()
	b.f = nil
	if err != nil {
		return &IOError{Op: "close", Err: err}
	}
	return nil
}
