package output

import (
	"bufio"
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLWriter writes each record as its own YAML document.
type YAMLWriter struct {
	w       *bufio.Writer
	encoder *yaml.Encoder
	written bool
}

// NewYAMLWriter creates a YAML writer.
func NewYAMLWriter(w io.Writer) *YAMLWriter {
	bw := bufio.NewWriter(w)
	encoder := yaml.NewEncoder(bw)
	encoder.SetIndent(2)
	return &YAMLWriter{
		w:       bw,
		encoder: encoder,
	}
}

// Write encodes a record as a new document.
func (w *YAMLWriter) Write(rec PageRecord) error {
	if err := w.encoder.Encode(rec); err != nil {
		return err
	}
	w.written = true
	return w.w.Flush()
}

// Flush flushes the buffer.
func (w *YAMLWriter) Flush() error {
	return w.w.Flush()
}

// Close finishes the stream. An encoder that never wrote a document has no
// stream to finish.
func (w *YAMLWriter) Close() error {
	if !w.written {
		return w.w.Flush()
	}
	if err := w.encoder.Close(); err != nil {
		return err
	}
	return w.w.Flush()
}
