package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoJSONObject is returned when free text contains no balanced JSON object.
var ErrNoJSONObject = errors.New("jsonutil: no JSON object found")

// MarshalNoEscape encodes v into JSON without escaping <, >, & into \u003c, etc.
func MarshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MarshalNoEscapeIndent is MarshalNoEscape with indentation.
func MarshalNoEscapeIndent(v any, prefix, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent(prefix, indent)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// WriteFile writes v as indented JSON to path, creating parent directories.
// The write goes through a temp file + rename so readers never see a torn file.
func WriteFile(path string, v any) error {
	b, err := MarshalNoEscapeIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadFile decodes the JSON file at path into v.
func ReadFile(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// ExtractFirstObject returns the first balanced {...} block found in text.
// Braces inside JSON string literals are ignored, so prose around the object
// and code snippets inside string values are both tolerated.
func ExtractFirstObject(text string) (json.RawMessage, error) {
	return extractFirst(text, '{', '}')
}

// ExtractFirstArray is ExtractFirstObject for [...] blocks.
func ExtractFirstArray(text string) (json.RawMessage, error) {
	raw, err := extractFirst(text, '[', ']')
	if errors.Is(err, ErrNoJSONObject) {
		return nil, errors.New("jsonutil: no JSON array found")
	}
	return raw, err
}

func extractFirst(text string, open, close byte) (json.RawMessage, error) {
	for start := strings.IndexByte(text, open); start >= 0; {
		end := matchBalanced(text, start, open, close)
		if end > 0 {
			candidate := text[start : end+1]
			if json.Valid([]byte(candidate)) {
				return json.RawMessage(candidate), nil
			}
		}
		next := strings.IndexByte(text[start+1:], open)
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, ErrNoJSONObject
}

// matchBalanced returns the index of the delimiter closing text[start], or -1.
func matchBalanced(text string, start int, open, close byte) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// StripCodeFence removes a surrounding markdown ``` fence (with optional
// language tag) from an LLM answer.
func StripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// UnmarshalFlex unmarshals raw into v. When raw is a JSON string that itself
// holds JSON (some providers double-encode), the inner document is decoded.
func UnmarshalFlex(raw []byte, v any) error {
	err := json.Unmarshal(raw, v)
	if err == nil {
		return nil
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return err
	}
	return json.Unmarshal([]byte(s), v)
}
