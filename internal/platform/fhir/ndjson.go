package fhir

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// maxNDJSONLine bounds one NDJSON record.
const maxNDJSONLine = 16 << 20

// ReadNDJSON decodes one resource per line and passes it to fn. Blank lines
// are skipped. Errors carry the 1-based line number.
func ReadNDJSON(r io.Reader, fn func(*Resource) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxNDJSONLine)
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		res, err := ParseResource(data)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(res); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read ndjson: %w", err)
	}
	return nil
}

// NDJSONWriter writes resources as Newline Delimited JSON, the Bulk Data
// export format.
type NDJSONWriter struct {
	w *bufio.Writer
}

func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	return &NDJSONWriter{w: bufio.NewWriter(w)}
}

// WriteResource writes r as a single line.
func (n *NDJSONWriter) WriteResource(r *Resource) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", r.Key(), err)
	}
	if _, err := n.w.Write(data); err != nil {
		return err
	}
	return n.w.WriteByte('\n')
}

// Flush flushes any buffered data to the underlying writer.
func (n *NDJSONWriter) Flush() error {
	return n.w.Flush()
}
