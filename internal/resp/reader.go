package resp

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Protocol limits
const (
	MaxArrayLen = 1024 * 1024
	MaxBulkLen  = 512 * 1024 * 1024

	// DefaultBufferSize bounds a single line (inline command or length header)
	DefaultBufferSize = 4096
)

var (
	ErrProtocol      = errors.New("protocol error")
	ErrInvalidEnding = errors.New("invalid line ending")
	ErrLimitExceeded = errors.New("protocol limit exceeded")
)

// Decoder reads RESP values and client commands from a stream
type Decoder struct {
	rd *bufio.Reader
}

// NewDecoder creates a Decoder with the default line buffer
func NewDecoder(rd io.Reader) *Decoder {
	return NewDecoderSize(rd, DefaultBufferSize)
}

// NewDecoderSize creates a Decoder whose buffer, and therefore the longest accepted line, is size bytes
func NewDecoderSize(rd io.Reader, size int) *Decoder {
	return &Decoder{rd: bufio.NewReaderSize(rd, size)}
}

// Buffered returns the number of bytes that can be read from the current buffer
func (d *Decoder) Buffered() int {
	return d.rd.Buffered()
}

// ReadCommand reads the next client command, either a RESP array of bulk strings or an inline line.
// A blank inline line yields an empty command. io.EOF is returned only between commands,
// a stream ending inside a command yields io.ErrUnexpectedEOF
func (d *Decoder) ReadCommand() ([]string, error) {
	b, err := d.rd.Peek(1)
	if err != nil {
		return nil, err
	}

	tokens, err := d.readCommand(b[0])
	if errors.Is(err, io.EOF) {
		return nil, io.ErrUnexpectedEOF
	}
	return tokens, err
}

func (d *Decoder) readCommand(first byte) ([]string, error) {
	if first != TypeArray {
		line, err := d.readLine()
		if err != nil {
			if errors.Is(err, ErrInvalidEnding) {
				// inline commands may end with a bare LF
				line = strings.TrimRight(line, "\n")
			} else {
				return nil, err
			}
		}
		return strings.Fields(line), nil
	}

	val, err := d.Read()
	if err != nil {
		return nil, err
	}

	tokens := make([]string, len(val.Array))
	for i, el := range val.Array {
		if el.Type != TypeBulkString || el.IsNull {
			return nil, fmt.Errorf("%w: expected bulk string at position %d", ErrProtocol, i)
		}
		tokens[i] = string(el.String)
	}

	return tokens, nil
}

// Read decodes the next RESP value of any type
func (d *Decoder) Read() (Value, error) {
	_type, err := d.rd.ReadByte()
	if err != nil {
		return Value{}, err
	}

	val := Value{
		Type: _type,
	}

	switch val.Type {
	case TypeSimpleString, TypeError:
		line, err := d.readLine()
		if err != nil {
			return Value{}, err
		}
		val.String = []byte(line)
		return val, nil

	case TypeInteger:
		num, err := d.readInteger()
		if err != nil {
			return Value{}, err
		}
		val.Integer = num
		return val, nil

	case TypeBulkString:
		size, err := d.readInteger()
		if err != nil {
			return Value{}, err
		}
		if size < 0 {
			val.IsNull = true
			return val, nil
		}
		if size > MaxBulkLen {
			return Value{}, fmt.Errorf("%w: bulk length %d", ErrLimitExceeded, size)
		}

		buf, err := d.readBulk(size + 2)
		if err != nil {
			return Value{}, err
		}
		if buf[size] != '\r' || buf[size+1] != '\n' {
			return Value{}, ErrInvalidEnding
		}
		val.String = buf[:size]
		return val, nil

	case TypeArray:
		count, err := d.readInteger()
		if err != nil {
			return Value{}, err
		}
		if count < 0 {
			val.IsNull = true
			return val, nil
		}
		if count > MaxArrayLen {
			return Value{}, fmt.Errorf("%w: array length %d", ErrLimitExceeded, count)
		}

		val.Array = make([]Value, 0, min(count, 1024))
		for i := int64(0); i < count; i++ {
			el, err := d.Read()
			if err != nil {
				return Value{}, err
			}
			val.Array = append(val.Array, el)
		}
		return val, nil
	}

	return Value{}, fmt.Errorf("%w: unexpected type byte %q", ErrProtocol, _type)
}

// readBulk reads exactly n bytes. The buffer grows with the data received,
// so a declared length alone never reserves more than one read buffer
func (d *Decoder) readBulk(n int64) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(int(min(n, int64(d.rd.Size()))))

	if _, err := io.CopyN(&buf, d.rd, n); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

// readLine reads up to CRLF and returns the line without it
func (d *Decoder) readLine() (string, error) {
	line, err := d.rd.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return "", fmt.Errorf("%w: line longer than %d bytes", ErrLimitExceeded, d.rd.Size())
		}
		return "", err
	}

	if len(line) < 2 || line[len(line)-2] != '\r' {
		return string(line), ErrInvalidEnding
	}

	return string(line[:len(line)-2]), nil
}

func (d *Decoder) readInteger() (int64, error) {
	line, err := d.readLine()
	if err != nil {
		return 0, err
	}

	num, err := strconv.ParseInt(line, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid integer %q", ErrProtocol, line)
	}

	return num, nil
}
