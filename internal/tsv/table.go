// Package tsv reads and writes the tab-separated tables exchanged between
// pipeline stages.
package tsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Table is a header plus rows, addressed by column name.
type Table struct {
	Header []string
	Rows   [][]string
	index  map[string]int
}

// Column returns the position of name or -1.
func (t *Table) Column(name string) int {
	if t.index == nil {
		t.index = make(map[string]int, len(t.Header))
		for i, h := range t.Header {
			t.index[h] = i
		}
	}
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// Get returns the cell of row at column name, or "" when absent.
func (t *Table) Get(row []string, name string) string {
	i := t.Column(name)
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// Require fails when any of names is not a column.
func (t *Table) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if t.Column(n) < 0 {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Read parses a table whose first line is the header.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	t := &Table{Header: header}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		t.Rows = append(t.Rows, row)
	}
}

// ReadFile opens path and parses it with Read.
func ReadFile(path string) (*Table, error) {
	// #nosec G304 -- input tables are operator-supplied paths.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", path, err)
	}
	return t, nil
}

// Write emits header and rows.
func Write(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

// WriteFile writes a table to path atomically: a partially written file is
// never visible under path.
func WriteFile(path string, header []string, rows [][]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create table dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp table: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if err := Write(tmp, header, rows); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write table %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close table %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename table %s: %w", path, err)
	}
	return nil
}

// FormatBool renders booleans the way the downstream notebooks expect.
func FormatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// ParseBool accepts True/False in any common spelling; "" is false.
func ParseBool(s string) (bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("parse bool %q: %w", s, err)
	}
	return b, nil
}

// FormatOptional renders nil as an empty cell.
func FormatOptional(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ParseOptional maps an empty cell to nil.
func ParseOptional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// itoaOrEmpty renders 0 as an empty cell, matching missing joins.
func itoaOrEmpty(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func atoiOrZero(s string) (int, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".0")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse int %q: %w", s, err)
	}
	return n, nil
}
