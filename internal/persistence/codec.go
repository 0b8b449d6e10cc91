package persistence

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/eternalApril/lettuce/internal/storage"
)

// record tags of the snapshot line format
const (
	tagString = "K"
	tagList   = "L"
	tagHash   = "H"
	tagExpire = "X"
)

// ErrCorrupt is wrapped by every error caused by a malformed snapshot line
var ErrCorrupt = errors.New("corrupt snapshot")

// WriteRecords writes one line per record, followed by an expiry line for keys with a deadline.
// Records are sorted by key, so equal stores produce equal files
func WriteRecords(w io.Writer, records []storage.Record) error {
	sorted := slices.Clone(records)
	slices.SortFunc(sorted, func(a, b storage.Record) int {
		return strings.Compare(a.Key, b.Key)
	})

	bw := bufio.NewWriter(w)
	for _, r := range sorted {
		line, err := encodeRecord(r)
		if err != nil {
			return err
		}
		if _, err := bw.WriteString(line); err != nil {
			return err
		}

		if !r.ExpireAt.IsZero() {
			expLine := tagExpire + " " + escape(r.Key) + " " + strconv.FormatInt(r.ExpireAt.UnixMilli(), 10) + "\n"
			if _, err := bw.WriteString(expLine); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

func encodeRecord(r storage.Record) (string, error) {
	var sb strings.Builder

	switch r.Entity.Type {
	case storage.TypeString:
		sb.WriteString(tagString)
		sb.WriteByte(' ')
		sb.WriteString(escape(r.Key))
		sb.WriteByte(' ')
		sb.WriteString(escape(r.Entity.Value.(string)))

	case storage.TypeList:
		sb.WriteString(tagList)
		sb.WriteByte(' ')
		sb.WriteString(escape(r.Key))
		for _, item := range r.Entity.Value.([]string) {
			sb.WriteByte(' ')
			sb.WriteString(escape(item))
		}

	case storage.TypeHash:
		sb.WriteString(tagHash)
		sb.WriteByte(' ')
		sb.WriteString(escape(r.Key))

		hash := r.Entity.Value.(map[string]string)
		fields := make([]string, 0, len(hash))
		for f := range hash {
			fields = append(fields, f)
		}
		slices.Sort(fields)

		for _, f := range fields {
			sb.WriteByte(' ')
			sb.WriteString(escape(f))
			sb.WriteByte(':')
			sb.WriteString(escape(hash[f]))
		}

	default:
		return "", fmt.Errorf("key %q: unsupported type %s", r.Key, r.Entity.Type)
	}

	sb.WriteByte('\n')
	return sb.String(), nil
}

// ReadRecords parses a whole snapshot. Expiry lines must follow the record of their key.
// Deadlines already in the past drop the key
func ReadRecords(r io.Reader, now time.Time) ([]storage.Record, error) {
	br := bufio.NewReader(r)

	var records []storage.Record
	index := make(map[string]int) // key - position in records

	for lineNo := 1; ; lineNo++ {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if line == "" && errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
		if line != "" {
			if perr := parseLine(line, &records, index); perr != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrCorrupt, lineNo, perr)
			}
		}

		if errors.Is(err, io.EOF) {
			break
		}
	}

	live := records[:0]
	for _, rec := range records {
		if !rec.ExpireAt.IsZero() && !rec.ExpireAt.After(now) {
			continue
		}
		live = append(live, rec)
	}

	return live, nil
}

func parseLine(line string, records *[]storage.Record, index map[string]int) error {
	tokens := strings.Split(line, " ")
	if len(tokens) < 2 {
		return errors.New("missing key")
	}

	key, err := unescape(tokens[1])
	if err != nil {
		return err
	}
	rest := tokens[2:]

	var entity storage.Entity

	switch tokens[0] {
	case tagString:
		if len(rest) != 1 {
			return fmt.Errorf("string record expects 1 value, got %d", len(rest))
		}
		value, err := unescape(rest[0])
		if err != nil {
			return err
		}
		entity = storage.Entity{Type: storage.TypeString, Value: value}

	case tagList:
		if len(rest) == 0 {
			return errors.New("empty list record")
		}
		items := make([]string, len(rest))
		for i, tok := range rest {
			if items[i], err = unescape(tok); err != nil {
				return err
			}
		}
		entity = storage.Entity{Type: storage.TypeList, Value: items}

	case tagHash:
		if len(rest) == 0 {
			return errors.New("empty hash record")
		}
		hash := make(map[string]string, len(rest))
		for _, tok := range rest {
			rawField, rawValue, ok := strings.Cut(tok, ":")
			if !ok {
				return fmt.Errorf("hash pair %q has no separator", tok)
			}
			field, err := unescape(rawField)
			if err != nil {
				return err
			}
			if hash[field], err = unescape(rawValue); err != nil {
				return err
			}
		}
		entity = storage.Entity{Type: storage.TypeHash, Value: hash}

	case tagExpire:
		if len(rest) != 1 {
			return fmt.Errorf("expiry record expects 1 timestamp, got %d", len(rest))
		}
		ms, err := strconv.ParseInt(rest[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q", rest[0])
		}
		pos, ok := index[key]
		if !ok {
			return fmt.Errorf("expiry for unknown key %q", key)
		}
		(*records)[pos].ExpireAt = time.UnixMilli(ms)
		return nil

	default:
		return fmt.Errorf("unknown record tag %q", tokens[0])
	}

	// a repeated key replaces the earlier record
	if pos, ok := index[key]; ok {
		(*records)[pos] = storage.Record{Key: key, Entity: entity}
		return nil
	}
	index[key] = len(*records)
	*records = append(*records, storage.Record{Key: key, Entity: entity})
	return nil
}

func escape(s string) string {
	return url.QueryEscape(s)
}

func unescape(s string) (string, error) {
	out, err := url.QueryUnescape(s)
	if err != nil {
		return "", fmt.Errorf("bad token %q", s)
	}
	return out, nil
}
