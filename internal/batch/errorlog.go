package batch

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// ErrorEntry is one line of an error log.
type ErrorEntry struct {
	Chunk   int
	Title   string
	Message string
}

// ErrorLog appends tab-separated failure lines to a file. Each append opens
// the file in append mode so a crash loses at most the line being written.
type ErrorLog struct {
	mu   sync.Mutex
	path string
}

var lineBreaker = strings.NewReplacer("\t", " ", "\r\n", " ", "\n", " ", "\r", " ")

// OpenErrorLog creates the log's directory and returns the log.
func OpenErrorLog(path string) (*ErrorLog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("error log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("%w: create error log dir: %w", ErrStorage, err)
	}
	return &ErrorLog{path: path}, nil
}

// Path returns the log file path.
func (l *ErrorLog) Path() string {
	return l.path
}

// Append writes one line. Tabs and line breaks inside title or cause are
// replaced with spaces so every failure stays a single three-field line.
func (l *ErrorLog) Append(chunk int, title string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	line := strconv.Itoa(chunk) + "\t" + lineBreaker.Replace(title) + "\t" + lineBreaker.Replace(msg) + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("%w: open error log: %w", ErrStorage, err)
	}
	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: append error log: %w", ErrStorage, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close error log: %w", ErrStorage, err)
	}
	return nil
}

// ReadErrorLog parses an error log. Blank lines are ignored.
func ReadErrorLog(path string) ([]ErrorEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open error log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []ErrorEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("error log line %d: expected chunk and title", n)
		}
		chunk, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("error log line %d: %w", n, err)
		}
		entry := ErrorEntry{Chunk: chunk, Title: parts[1]}
		if len(parts) == 3 {
			entry.Message = parts[2]
		}
		out = append(out, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read error log: %w", err)
	}
	return out, nil
}

// RedoTitles returns the distinct titles of entries in first-seen order.
func RedoTitles(entries []ErrorEntry) []string {
	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.Title]; ok || e.Title == "" {
			continue
		}
		seen[e.Title] = struct{}{}
		out = append(out, e.Title)
	}
	return out
}

// IsStorage reports whether err is a storage failure.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}
