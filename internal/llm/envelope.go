package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	keyScript      = "bash script"
	keyDescription = "description"
)

// Script is the generator's candidate. It is immutable once parsed.
type Script struct {
	Body        string
	Description string
}

// ParseEnvelope decodes a model reply that must be a JSON object with exactly
// the keys "bash script" and "description", both strings, the script
// non-empty. Raw control characters inside string literals are tolerated.
func ParseEnvelope(raw string) (Script, error) {
	fail := func(err error) (Script, error) {
		return Script{}, &GenerationError{Raw: raw, Err: err}
	}

	text := strings.TrimSpace(raw)
	if text == "" {
		return fail(errors.New("empty response"))
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(escapeControlInStrings(text)), &fields); err != nil {
		return fail(fmt.Errorf("not a JSON object: %w", err))
	}
	if fields == nil {
		return fail(errors.New("not a JSON object"))
	}

	var extra []string
	for k := range fields {
		if k != keyScript && k != keyDescription {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return fail(fmt.Errorf("unexpected keys %q", extra))
	}

	var s Script
	if err := stringField(fields, keyScript, &s.Body); err != nil {
		return fail(err)
	}
	if err := stringField(fields, keyDescription, &s.Description); err != nil {
		return fail(err)
	}
	if strings.TrimSpace(s.Body) == "" {
		return fail(fmt.Errorf("%q is empty", keyScript))
	}
	return s, nil
}

func stringField(fields map[string]json.RawMessage, key string, dst *string) error {
	raw, ok := fields[key]
	if !ok {
		return fmt.Errorf("missing key %q", key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("key %q is not a string", key)
	}
	return nil
}

// escapeControlInStrings rewrites raw control characters that appear inside
// JSON string literals as escapes, leaving everything outside strings alone.
func escapeControlInStrings(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}
		switch {
		case escaped:
			escaped = false
			b.WriteByte(c)
		case c == '\\':
			escaped = true
			b.WriteByte(c)
		case c == '"':
			inString = false
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20:
			fmt.Fprintf(&b, `\u%04x`, c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
