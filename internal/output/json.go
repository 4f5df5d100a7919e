package output

import (
	"bufio"
	"encoding/json"
	"io"
)

// JSONWriter buffers records and writes them as one JSON array.
type JSONWriter struct {
	w       *bufio.Writer
	pretty  bool
	indent  string
	records []PageRecord
	flushed bool
}

// NewJSONWriter creates a JSON writer.
func NewJSONWriter(w io.Writer, pretty bool, indent string) *JSONWriter {
	return &JSONWriter{
		w:       bufio.NewWriter(w),
		pretty:  pretty,
		indent:  indent,
		records: make([]PageRecord, 0),
	}
}

// Write buffers a record.
func (w *JSONWriter) Write(rec PageRecord) error {
	w.records = append(w.records, rec)
	return nil
}

// Flush writes the buffered records as a JSON array. The array is written
// once; later calls are no-ops.
func (w *JSONWriter) Flush() error {
	if w.flushed {
		return nil
	}

	var output []byte
	var err error
	if w.pretty {
		output, err = json.MarshalIndent(w.records, "", w.indent)
	} else {
		output, err = json.Marshal(w.records)
	}
	if err != nil {
		return err
	}

	if _, err := w.w.Write(output); err != nil {
		return err
	}
	if _, err := w.w.WriteString("\n"); err != nil {
		return err
	}

	w.flushed = true
	return w.w.Flush()
}

// Close flushes the writer.
func (w *JSONWriter) Close() error {
	return w.Flush()
}

// JSONLWriter writes one JSON record per line as records arrive.
type JSONLWriter struct {
	w *bufio.Writer
}

// NewJSONLWriter creates a JSONL writer.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{
		w: bufio.NewWriter(w),
	}
}

// Write writes a record as a JSON line.
func (w *JSONLWriter) Write(rec PageRecord) error {
	output, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	if _, err := w.w.Write(output); err != nil {
		return err
	}
	if _, err := w.w.WriteString("\n"); err != nil {
		return err
	}

	return w.w.Flush()
}

// Flush flushes the buffer.
func (w *JSONLWriter) Flush() error {
	return w.w.Flush()
}

// Close flushes the writer.
func (w *JSONLWriter) Close() error {
	return w.Flush()
}
