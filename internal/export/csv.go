// Package export streams tabular downloads in CSV and XLSX form.
package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"net/http"
)

const (
	csvBufferSize = 32 * 1024
	csvFlushEvery = 200
)

// CSVStreamer writes CSV rows straight to the response so large exports never
// buffer fully in memory. Excel expects CRLF line endings.
type CSVStreamer struct {
	buf    *bufio.Writer
	writer *csv.Writer
	rows   int
}

// NewCSVStreamer sets download headers and returns a streamer.
func NewCSVStreamer(w http.ResponseWriter, filename string) *CSVStreamer {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &CSVStreamer{buf: buf, writer: writer}
}

// Write emits one record, flushing periodically to keep the client fed.
func (s *CSVStreamer) Write(record []string) error {
	if err := s.writer.Write(record); err != nil {
		return err
	}
	s.rows++
	if s.rows%csvFlushEvery == 0 {
		s.writer.Flush()
		if err := s.writer.Error(); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes remaining rows and the buffer.
func (s *CSVStreamer) Close() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return err
	}
	return s.buf.Flush()
}
