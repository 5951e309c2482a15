package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LogLine is one captured line of step output.
type LogLine struct {
	Step   int    `json:"step"`
	Stream string `json:"stream"`
	Data   string `json:"data"`
}

// RunLogger captures a job's step output opaquely into one JSON-line
// file. The file path is the "captured output reference" carried by
// step results; nothing in here parses the output for status.
type RunLogger struct {
	path string
	file *os.File

	mu      sync.Mutex
	encoder *json.Encoder
}

func NewRunLogger(baseDir string, id JobID) (*RunLogger, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}

	path := LogFilePath(baseDir, id)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating log file: %w", err)
	}

	return &RunLogger{
		path:    path,
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

func LogFilePath(baseDir string, id JobID) string {
	return filepath.Join(baseDir, fmt.Sprintf("%s.log", id.String()))
}

func (l *RunLogger) Path() string {
	return l.path
}

func (l *RunLogger) Close() error {
	return l.file.Close()
}

// Stdout returns a writer recording the given step's stdout stream.
func (l *RunLogger) Stdout(step int) io.Writer {
	return &streamWriter{logger: l, step: step, stream: "stdout"}
}

// Stderr returns a writer recording the given step's stderr stream.
func (l *RunLogger) Stderr(step int) io.Writer {
	return &streamWriter{logger: l, step: step, stream: "stderr"}
}

func (l *RunLogger) encode(entry LogLine) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.encoder.Encode(entry)
}

type streamWriter struct {
	logger *RunLogger
	step   int
	stream string
}

func (w *streamWriter) Write(p []byte) (int, error) {
	for line := range strings.Lines(string(p)) {
		entry := LogLine{
			Step:   w.step,
			Stream: w.stream,
			Data:   strings.TrimRight(line, "\r\n"),
		}
		if err := w.logger.encode(entry); err != nil {
			return 0, err
		}
	}

	return len(p), nil
}
