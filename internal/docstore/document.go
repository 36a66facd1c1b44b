package docstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	fileExt = ".json"
	tmpExt  = ".tmp"
)

// encode returns the canonical on-disk form of doc along with its generic
// decoded form.
//
// doc is marshaled once to normalize structs and typed maps, then the generic
// tree is re-encoded so that object keys are always sorted. Numbers are kept
// as json.Number so 64-bit integers survive unchanged.
func encode(doc any) ([]byte, any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	var generic any
	if err := unmarshal(raw, &generic); err != nil {
		return nil, nil, fmt.Errorf("failed to normalize document: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(generic); err != nil {
		return nil, nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return buf.Bytes(), generic, nil
}

// decode parses file content. ok is false for empty content, which means no
// data rather than corruption.
func decode(data []byte) (doc any, ok bool, err error) {
	if len(data) == 0 {
		return nil, false, nil
	}
	if err := unmarshal(data, &doc); err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// unmarshal is json.Unmarshal with numbers decoded as json.Number.
func unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("invalid character after top-level value")
	}
	return nil
}

// clone deep copies a generic JSON value. Scalars are immutable and returned
// as is.
func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = clone(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = clone(e)
		}
		return s
	default:
		return v
	}
}

// validateKey rejects keys that would escape the store directory.
func validateKey(key string) error {
	switch {
	case key == "", key == ".", key == "..":
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	case strings.ContainsAny(key, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator or NUL", ErrInvalidKey, key)
	}
	return nil
}
