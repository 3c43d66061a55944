// Package reader parses persisted profile streams into ordered record
// sequences, deriving entity types and applying exclusion filters.
package reader

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/timeseam/timeseam/internal/model"
)

// ParseError reports a row whose mandatory time field could not be
// parsed. It is fatal for the stream it names, not for other streams.
type ParseError struct {
	Stream string
	Line   int
	Row    string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("stream %s, line %d: %v (row %q)", e.Stream, e.Line, e.Err, e.Row)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Filter is an exclusion filter: field name to banned substrings.
// A record is dropped when any filtered field contains any of that
// field's substrings. Matching is substring, not equality.
type Filter map[string][]string

// Drop reports whether the record matches the filter. Field names are
// resolved through the canonical aliases; unknown names never match.
func (f Filter) Drop(r model.Record) bool {
	for field, pats := range f {
		name, ok := model.CanonicalField(field)
		if !ok {
			continue
		}
		val, _ := r.FieldValue(name)
		for _, pat := range pats {
			if strings.Contains(val, pat) {
				return true
			}
		}
	}
	return false
}

// OpenFunc opens one stream source by path. It exists so callers can
// route reads through archived storage; nil means plain os.Open.
type OpenFunc func(path string) (io.ReadCloser, error)

// Read parses one stream from r. name identifies the stream in parse
// errors. sid is substituted as uid for records recorded without one;
// such records get entity "session". Rows matching filter are dropped
// after entity derivation, so the filter also applies to entity.
func Read(r io.Reader, name, sid string, filter Filter) ([]model.Record, error) {
	var records []model.Record

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()

		// skip header
		if strings.HasPrefix(text, "#") {
			continue
		}

		// the message column absorbs any surplus delimiters
		parts := strings.SplitN(text, ",", model.NumFields)
		for len(parts) < model.NumFields {
			parts = append(parts, "")
		}

		ts, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, &ParseError{Stream: name, Line: line, Row: text, Err: err}
		}

		rec := model.Record{
			Time:  ts,
			Event: parts[1],
			Comp:  parts[2],
			UID:   parts[3],
			State: parts[4],
			Msg:   parts[5],
		}

		if rec.UID != "" {
			rec.Entity = strings.SplitN(rec.UID, ".", 2)[0]
		} else {
			rec.UID = sid
			rec.Entity = "session"
		}

		if filter.Drop(rec) {
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, &ParseError{Stream: name, Line: line, Err: err}
	}

	return records, nil
}

// ReadFile parses the stream file at path.
func ReadFile(path, sid string, filter Filter) ([]model.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, StreamName(path), sid, filter)
}

// ReadAll parses every stream in paths. A stream that fails aborts only
// itself: its error is returned in failed, keyed by stream name, and
// the remaining streams are unaffected.
func ReadAll(paths []string, sid string, filter Filter, open OpenFunc) (map[string][]model.Record, map[string]error) {
	if open == nil {
		open = func(path string) (io.ReadCloser, error) {
			return os.Open(path)
		}
	}

	streams := make(map[string][]model.Record, len(paths))
	failed := make(map[string]error)

	for _, path := range paths {
		name := StreamName(path)

		rc, err := open(path)
		if err != nil {
			failed[name] = err
			continue
		}

		records, err := Read(rc, name, sid, filter)
		rc.Close()
		if err != nil {
			failed[name] = err
			continue
		}
		streams[name] = records
	}

	return streams, failed
}

// StreamName derives a stream's name from its file path, stripping the
// plain and archived extensions.
func StreamName(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".zst")
	name = strings.TrimSuffix(name, ".prof")
	return name
}
