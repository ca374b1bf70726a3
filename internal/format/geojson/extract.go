package geojson

import (
	"bytes"
	"unicode/utf8"
)

var featuresKey = []byte(`"features"`)

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// skipSpace returns the number of leading JSON whitespace bytes.
func skipSpace(text []byte) int {
	i := 0
	for i < len(text) && isSpace(text[i]) {
		i++
	}

	return i
}

// validText returns the longest prefix of buf that ends on a rune boundary
// and whether that prefix is valid UTF-8. A multi-byte sequence cut by a
// chunk boundary is left out of the prefix instead of failing validation.
func validText(buf []byte) ([]byte, bool) {
	end := len(buf)
	for back := 1; back <= utf8.UTFMax-1 && back <= len(buf); back++ {
		c := buf[len(buf)-back]
		if c < utf8.RuneSelf {
			break
		}
		if utf8.RuneStart(c) {
			if !utf8.FullRune(buf[len(buf)-back:]) {
				end = len(buf) - back
			}
			break
		}
	}
	text := buf[:end]

	return text, utf8.Valid(text)
}

// locateFeaturesArray returns the offset just past the '[' opening the
// "features" array. The scan is textual: a "features" literal earlier in the
// document, for example inside a property value, is taken for the key.
func locateFeaturesArray(text []byte) (int, bool) {
	keyPos := bytes.Index(text, featuresKey)
	if keyPos < 0 {
		return 0, false
	}

	pos := keyPos + len(featuresKey)
	pos += skipSpace(text[pos:])
	if pos >= len(text) || text[pos] != ':' {
		return 0, false
	}
	pos++
	pos += skipSpace(text[pos:])

	bracket := bytes.IndexByte(text[pos:], '[')
	if bracket < 0 {
		return 0, false
	}

	return pos + bracket + 1, true
}

// extractObject slices the first complete top-level JSON object from text.
// Leading bytes before the first '{' are skipped and counted in consumed;
// the returned object starts at that '{'. ok is false when the object is not
// complete yet. A '}' appearing before any '{' is malformed input and also
// reports ok == false, so the caller never gets a wrong slice.
func extractObject(text []byte) (obj []byte, consumed int, ok bool) {
	depth := 0
	start := -1
	inString := false
	escapeNext := false

	for i, c := range text {
		if escapeNext {
			escapeNext = false
			continue
		}

		switch c {
		case '\\':
			if inString {
				escapeNext = true
			}
		case '"':
			inString = !inString
		case '{':
			if inString {
				continue
			}
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if inString {
				continue
			}
			if start < 0 {
				return nil, 0, false
			}
			depth--
			if depth == 0 {
				return text[start : i+1], i + 1, true
			}
		}
	}

	return nil, 0, false
}

type separator int

const (
	sepNeedMore separator = iota
	sepComma
	sepClose
	sepOther
)

// skipSeparator inspects the first non-whitespace byte after a feature.
// consumed covers the whitespace and the separator itself.
func skipSeparator(text []byte) (separator, int) {
	ws := skipSpace(text)
	if ws == len(text) {
		return sepNeedMore, 0
	}

	switch text[ws] {
	case ',':
		return sepComma, ws + 1
	case ']':
		return sepClose, ws + 1
	default:
		return sepOther, 0
	}
}
