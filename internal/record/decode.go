package record

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ohler55/ojg/oj"
)

// ErrNotObject is returned when a line decodes to something other than a
// JSON object.
var ErrNotObject = errors.New("line is not a JSON object")

// ParseError reports a malformed input line.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Decoder turns NDJSON lines into Records. It reuses its parser between
// calls and is not safe for concurrent use.
type Decoder struct {
	p oj.Parser
}

// NewDecoder returns a Decoder ready for use.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode parses one line. Absent or null fields default to "" or 0; the
// derived sanitized_body and the is_locked flag always start empty.
func (d *Decoder) Decode(line []byte) (Record, error) {
	v, err := d.p.Parse(line)
	if err != nil {
		return Record{}, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return Record{}, ErrNotObject
	}

	f := fields{obj: obj}
	r := Record{
		ScoreHidden:         f.int("score_hidden"),
		Name:                f.str("name"),
		LinkID:              f.str("link_id"),
		Body:                f.str("body"),
		Downs:               f.int("downs"),
		CreatedUTC:          f.int("created_utc"),
		Score:               f.int("score"),
		Author:              f.str("author"),
		Distinguished:       f.str("distinguished"),
		ID:                  f.str("id"),
		Archived:            f.int("archived"),
		ParentID:            f.str("parent_id"),
		Subreddit:           f.str("subreddit"),
		AuthorFlairCSSClass: f.str("author_flair_css_class"),
		AuthorFlairText:     f.str("author_flair_text"),
		Gilded:              f.int("gilded"),
		RetrievedOn:         f.int("retrieved_on"),
		Ups:                 f.int("ups"),
		Controversiality:    f.int("controversiality"),
		SubredditID:         f.str("subreddit_id"),
		Edited:              f.int("edited"),
	}
	if f.err != nil {
		return Record{}, f.err
	}
	return r, nil
}

// fields reads typed values out of a decoded object, keeping the first
// conversion error.
type fields struct {
	obj map[string]any
	err error
}

func (f *fields) fail(key string, v any) {
	if f.err == nil {
		f.err = fmt.Errorf("field %q: unsupported value %v (%T)", key, v, v)
	}
}

func (f *fields) str(key string) string {
	switch v := f.obj[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		f.fail(key, v)
		return ""
	}
}

// int accepts JSON numbers, numeric strings and booleans; "edited" is false
// on unedited comments and a timestamp otherwise.
func (f *fields) int(key string) int64 {
	switch v := f.obj[key].(type) {
	case nil:
		return 0
	case int64:
		return v
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			f.fail(key, v)
			return 0
		}
		return int64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			f.fail(key, v)
			return 0
		}
		return n
	default:
		f.fail(key, v)
		return 0
	}
}
