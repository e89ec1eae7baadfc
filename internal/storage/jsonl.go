package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// TimestampLayout is ISO-8601 UTC with second precision.
const TimestampLayout = "2006-01-02T15:04:05Z"

// Record is one line of the positions log.
type Record struct {
	Timestamp       string `json:"timestamp"`
	Model           string `json:"model"`
	ActivePositions string `json:"active_positions"`
}

// NewRecord stamps text with at in UTC.
func NewRecord(at time.Time, model, text string) Record {
	return Record{
		Timestamp:       at.UTC().Format(TimestampLayout),
		Model:           model,
		ActivePositions: text,
	}
}

// Marshal encodes r as a single JSON line without HTML escaping.
func (r Record) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PositionsLog appends records to a JSON-lines file. Every Append is a
// single unbuffered write, so a record is on disk before Append returns
// and an interrupted process never leaves a partial batch behind.
type PositionsLog struct {
	path   string
	logger *lumberjack.Logger
	mu     sync.Mutex
}

// OpenPositionsLog opens (creating if needed) the log at path. Files are
// rotated past maxSizeMB and rotated files are never pruned.
func OpenPositionsLog(path string, maxSizeMB int) (*PositionsLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("positions log: mkdir %s: %w", dir, err)
		}
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	w := &PositionsLog{
		path: path,
		logger: &lumberjack.Logger{
			Filename:  path,
			MaxSize:   maxSizeMB,
			LocalTime: false,
			Compress:  false,
		},
	}
	slog.Info("positions log opened", "file", path, "max_size_mb", maxSizeMB)
	return w, nil
}

// Path returns the active log file.
func (w *PositionsLog) Path() string { return w.path }

// Append writes one record as a JSON line.
func (w *PositionsLog) Append(rec Record) error {
	data, err := rec.Marshal()
	if err != nil {
		return fmt.Errorf("positions log: marshal: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.logger == nil {
		return errors.New("positions log: closed")
	}
	if _, err := w.logger.Write(data); err != nil {
		return fmt.Errorf("positions log: write: %w", err)
	}
	slog.Debug("positions log appended", "timestamp", rec.Timestamp, "bytes", len(data))
	return nil
}

// Tail returns up to n most recent records from the active file, oldest
// first. Lines that do not decode are skipped.
func (w *PositionsLog) Tail(n int) ([]Record, error) {
	if n <= 0 {
		return []Record{}, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Open(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("positions log: open: %w", err)
	}
	defer func() { _ = f.Close() }()

	ring := make([]Record, 0, n)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			slog.Debug("positions log: skipping undecodable line", "error", err)
			continue
		}
		if len(ring) == n {
			ring = append(ring[1:], rec)
		} else {
			ring = append(ring, rec)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("positions log: scan: %w", err)
	}
	return ring, nil
}

// Close closes the underlying file.
func (w *PositionsLog) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.logger == nil {
		return nil
	}
	err := w.logger.Close()
	w.logger = nil
	return err
}
