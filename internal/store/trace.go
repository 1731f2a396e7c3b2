package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/photonforge/couplerfit/internal/epigraph"
)

// TraceEntry is one line of the per-run iteration history, serialized as
// JSONL in trace.jsonl. Objectives follow the constraint row ordering of
// the run's problem.
type TraceEntry struct {
	// Iteration is the 0-based evaluation index.
	Iteration int `json:"iteration"`

	// Epigraph is the epigraph value t at this evaluation.
	Epigraph float64 `json:"epigraph"`

	// Objectives is the raw objective vector.
	Objectives []float64 `json:"objectives"`

	// Timestamp records when this entry was written.
	Timestamp time.Time `json:"timestamp"`
}

// TraceWriter appends trace entries to a JSONL file with buffered I/O.
// Safe for concurrent use.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
	offset int
}

// NewTraceWriter creates a trace writer at <baseDir>/runs/<runID>/trace.jsonl.
// With resume set, new entries are appended to an existing trace and the
// writer's observer continues iteration numbering after the existing
// entries, keeping the file monotone across run segments.
func NewTraceWriter(baseDir, runID string, resume bool) (*TraceWriter, error) {
	runDir := filepath.Join(baseDir, "runs", runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	path := filepath.Join(runDir, "trace.jsonl")

	var file *os.File
	var err error
	offset := 0
	if resume {
		if entries, rerr := ReadTrace(baseDir, runID); rerr == nil {
			offset = len(entries)
		}
		file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	} else {
		file, err = os.Create(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &TraceWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
		offset: offset,
	}, nil
}

// Write appends a trace entry. The entry is buffered until Flush or Close.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}
	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	if err := tw.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// Observer adapts the writer to the driver's observer hook. The driver's
// 0-based indices are shifted past any pre-existing entries on a resumed
// trace. Write failures are logged rather than aborting the optimization:
// losing a trace line is recoverable, losing a converged design is not.
func (tw *TraceWriter) Observer() epigraph.Observer {
	return func(s epigraph.Snapshot) {
		entry := TraceEntry{
			Iteration:  s.Iteration + tw.offset,
			Epigraph:   s.Epigraph,
			Objectives: s.Objectives,
			Timestamp:  time.Now(),
		}
		if err := tw.Write(entry); err != nil {
			slog.Warn("Failed to write trace entry", "iteration", s.Iteration, "error", err)
		}
	}
}

// Flush writes buffered data to disk.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}
	return nil
}

// Close flushes and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// Path reports the trace file location.
func (tw *TraceWriter) Path() string { return tw.path }

// ReadTrace loads all entries of a run's trace.
func ReadTrace(baseDir, runID string) ([]TraceEntry, error) {
	path := filepath.Join(baseDir, "runs", runID, "trace.jsonl")

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{RunID: runID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer file.Close()

	var entries []TraceEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry TraceEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("failed to parse trace entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan trace file: %w", err)
	}
	return entries, nil
}
