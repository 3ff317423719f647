package validator

import "unicode/utf8"

// checkHidden rejects scripts containing characters that make the text shown
// to the user differ from the text the shell runs: invisible format
// characters, bidirectional controls, tag characters, stray control bytes
// and invalid UTF-8. Non-Latin letters are left alone; a look-alike command
// name already fails the whitelist.
func checkHidden(script string) Verdict {
	line := 1
	for i := 0; i < len(script); {
		r, size := utf8.DecodeRuneInString(script[i:])
		if r == utf8.RuneError && size == 1 {
			return reject(GateHidden, "line %d: invalid UTF-8 byte 0x%02X", line, script[i])
		}
		if kind := hiddenKind(r); kind != "" {
			return reject(GateHidden, "line %d: %s character U+%04X", line, kind, r)
		}
		if r == '\n' {
			line++
		}
		i += size
	}
	return accept()
}

func hiddenKind(r rune) string {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return ""
	case r < 0x20 || r == 0x7F || (r >= 0x80 && r <= 0x9F):
		return "control"
	case r >= 0xE0001 && r <= 0xE007F:
		return "tag"
	}
	switch r {
	case '\u200B', '\u200C', '\u200D', '\u2060', '\uFEFF', '\u180E', '\u00AD':
		return "zero-width"
	case '\u200E', '\u200F', '\u061C',
		'\u202A', '\u202B', '\u202C', '\u202D', '\u202E',
		'\u2066', '\u2067', '\u2068', '\u2069':
		return "bidirectional"
	}
	return ""
}

