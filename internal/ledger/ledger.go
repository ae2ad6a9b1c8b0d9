// Package ledger appends normalized swaps to a CSV file.
package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"swapwatch/internal/model"
)

// Header returns the ledger header for the given focus and other symbols.
func Header(focus, other string) []string {
	return []string{"ts", "tx", "side", "amount" + focus, "amount" + other, "usd", "sender", "recipient"}
}

// Ledger is an append-only CSV file. Rows are written with one Write call
// each, guarded by a mutex so concurrent channels never interleave.
type Ledger struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// Open prepares the ledger file. A missing file is created with the header;
// an existing file whose first line differs from the header gets the header
// replaced while every following row is kept.
func Open(path, focus, other string) (*Ledger, error) {
	header, err := encodeRow(Header(focus, other))
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}

	if err := ensureHeader(path, header); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return &Ledger{path: path, file: file}, nil
}

func ensureHeader(path string, header []byte) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return writeFileAtomic(path, header)
		}
		return fmt.Errorf("read ledger: %w", err)
	}

	first, rest := splitFirstLine(data)
	if strings.TrimRight(string(first), "\r") == strings.TrimRight(string(header), "\n") {
		return nil
	}

	out := make([]byte, 0, len(header)+len(rest))
	out = append(out, header...)
	out = append(out, rest...)
	return writeFileAtomic(path, out)
}

func splitFirstLine(data []byte) ([]byte, []byte) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return data[:i], data[i+1:]
	}
	return data, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write ledger tmp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename ledger: %w", err)
	}
	return nil
}

// Path returns the ledger file path.
func (l *Ledger) Path() string { return l.path }

// Append writes one swap row.
func (l *Ledger) Append(_ context.Context, swap model.NormalizedSwap) error {
	line, err := encodeRow(Row(swap))
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return fmt.Errorf("ledger closed")
	}
	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("write ledger row: %w", err)
	}
	return nil
}

// Close releases the file handle.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Row formats a swap as ledger fields.
func Row(swap model.NormalizedSwap) []string {
	return []string{
		strconv.FormatInt(swap.Timestamp, 10),
		swap.TxHash.Hex(),
		swap.Side,
		swap.AmountFocus.StringFixed(6),
		swap.AmountOther.StringFixed(6),
		swap.USDEstimate.StringFixed(2),
		swap.Sender.Hex(),
		swap.Recipient.Hex(),
	}
}

func encodeRow(fields []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return nil, fmt.Errorf("encode ledger row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode ledger row: %w", err)
	}
	return buf.Bytes(), nil
}
