package resp

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// ParseError reports a length field that is not a decimal number
type ParseError struct {
	Field  string // "array length" or "bulk length"
	Value  string
	Offset int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s %q at offset %d", e.Field, e.Value, e.Offset)
}

func (e *ParseError) Unwrap() error {
	return ErrProtocol
}

// ParseCommand decodes one command held entirely in buf.
//
// A buffer that does not start with '*' is split on whitespace (inline command).
// A truncated or malformed frame stops decoding and returns the tokens read so far,
// leaving it to the caller's arity checks to reject the command.
// Only a non-numeric length field is reported as an error.
func ParseCommand(buf []byte) ([]string, error) {
	if len(buf) == 0 {
		return []string{}, nil
	}

	if buf[0] != TypeArray {
		return strings.Fields(string(buf)), nil
	}

	pos := 1
	line, next, ok := scanLine(buf, pos)
	if !ok {
		return []string{}, nil
	}

	count, err := strconv.Atoi(line)
	if err != nil {
		return nil, &ParseError{Field: "array length", Value: line, Offset: pos}
	}
	pos = next

	tokens := make([]string, 0, min(max(count, 0), 64))
	for i := 0; i < count; i++ {
		if pos >= len(buf) || buf[pos] != TypeBulkString {
			break
		}
		pos++

		line, next, ok = scanLine(buf, pos)
		if !ok {
			break
		}

		size, err := strconv.Atoi(line)
		if err != nil {
			return nil, &ParseError{Field: "bulk length", Value: line, Offset: pos}
		}
		pos = next

		if size < 0 || size > len(buf)-pos {
			break
		}

		tokens = append(tokens, string(buf[pos:pos+size]))
		pos += size + 2 // payload and CRLF
	}

	return tokens, nil
}

// scanLine returns the text between pos and the next CRLF and the offset just past it
func scanLine(buf []byte, pos int) (string, int, bool) {
	if pos > len(buf) {
		return "", pos, false
	}
	idx := bytes.Index(buf[pos:], []byte("\r\n"))
	if idx < 0 {
		return "", pos, false
	}
	return string(buf[pos : pos+idx]), pos + idx + 2, true
}
