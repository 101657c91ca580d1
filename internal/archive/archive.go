// Package archive implements the append-only violation archive of
// spec.md §6: one CSV row per contract violation, written as it
// happens, never migrated or rewritten. Grounded on the teacher's
// internal/artifacts/writer.go encoding/csv usage, adapted from its
// atomic-rewrite pattern (write-temp, rename) to a single long-lived
// append handle, since an archive log must survive across calls
// rather than be rebuilt each time.
package archive

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/ecomguard/telemetry-guardrail/internal/types"
)

var header = []string{"timestamp", "sku", "violation_type", "reason", "severity"}

// Writer appends violation rows to a single CSV file, writing the
// header once if the file is new or empty.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// Open opens (or creates) the archive file at path for appending,
// writing the header row if the file is currently empty.
func Open(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat archive %s: %w", path, err)
	}

	w := &Writer{file: f, writer: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := w.writer.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write archive header: %w", err)
		}
		w.writer.Flush()
		if err := w.writer.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("flush archive header: %w", err)
		}
	}
	return w, nil
}

// Append writes one violation as a CSV row and flushes immediately, so
// a crash never loses a buffered-but-unwritten violation.
func (w *Writer) Append(v types.Violation) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	row := []string{
		v.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		v.SKU,
		string(v.ViolationType),
		v.Reason,
		string(v.Severity),
	}
	if err := w.writer.Write(row); err != nil {
		return fmt.Errorf("write violation row: %w", err)
	}
	w.writer.Flush()
	return w.writer.Error()
}

// AppendAll writes every violation in order, stopping at the first
// error.
func (w *Writer) AppendAll(violations []types.Violation) error {
	for i, v := range violations {
		if err := w.Append(v); err != nil {
			return fmt.Errorf("violation %d: %w", i, err)
		}
	}
	return nil
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writer.Flush()
	return w.file.Close()
}

// rowCount is used by tests to sanity-check appended row counts
// without re-parsing the file by hand.
func rowCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}
