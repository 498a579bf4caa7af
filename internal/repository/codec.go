// Package repository maps the persisted documents to domain types. Every
// mutation goes through document.Store.Update, so each one is a full
// load-mutate-save of its document.
package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// encodeDocument writes v as 4-space indented JSON with non-ASCII and HTML
// characters left unescaped.
func encodeDocument(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func decodeDocument(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}
