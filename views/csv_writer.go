package views

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"sync"
)

// CSVWriter is a concurrency-safe, buffered CSV writer used for result
// exports. Multiple batch workers may append rows; the underlying
// bufio.Writer absorbs syscall overhead and the mutex is held only for a
// single row encode.
type CSVWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	csv  *csv.Writer
	rows uint64
}

// NewCSVWriter creates the file and writes the header row.
func NewCSVWriter(path string, header []string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv create %s: %w", path, err)
	}

	bw := bufio.NewWriterSize(f, 64*1024)
	cw := csv.NewWriter(bw)

	w := &CSVWriter{file: f, buf: bw, csv: cw}
	if len(header) > 0 {
		if err := cw.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("csv write header: %w", err)
		}
	}
	return w, nil
}

// WriteRow appends a single CSV row. Thread-safe.
func (w *CSVWriter) WriteRow(row []string) {
	w.mu.Lock()
	_ = w.csv.Write(row) // error is buffered; surfaced on Close
	w.rows++
	w.mu.Unlock()
}

// Close flushes remaining data and closes the file.
func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		_ = w.file.Close()
		return err
	}
	if err := w.buf.Flush(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}

// Rows returns the number of data rows written (excludes header).
func (w *CSVWriter) Rows() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}
