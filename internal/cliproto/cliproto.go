// Package cliproto implements the stdin/stdout framing shared by the
// expressions, templates, and workflows binaries: requests are JSON
// documents separated by a line consisting of "---"; each response is a
// JSON object followed by its own "---" line.
package cliproto

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Delimiter separates request documents on stdin and terminates each
// response on stdout.
const Delimiter = "---"

// Scanner reads delimiter-separated JSON documents from a stream.
type Scanner struct {
	s *bufio.Scanner
}

// NewScanner wraps r. Lines longer than 16 MiB are rejected by the
// underlying line scanner.
func NewScanner(r io.Reader) *Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 16<<20)
	return &Scanner{s: s}
}

// Next accumulates lines until a delimiter line or EOF and returns the
// document. ok is false once the stream is exhausted.
func (sc *Scanner) Next() (doc []byte, ok bool, err error) {
	var buf bytes.Buffer
	sawLine := false
	for sc.s.Scan() {
		line := sc.s.Text()
		if line == Delimiter {
			if len(bytes.TrimSpace(buf.Bytes())) == 0 {
				// tolerate consecutive delimiters / leading delimiter
				buf.Reset()
				continue
			}
			return buf.Bytes(), true, nil
		}
		sawLine = true
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if err := sc.s.Err(); err != nil {
		return nil, false, err
	}
	if sawLine && len(bytes.TrimSpace(buf.Bytes())) > 0 {
		return buf.Bytes(), true, nil
	}
	return nil, false, nil
}

// Writer emits responses: one JSON document per Write, terminated by a
// delimiter line.
type Writer struct {
	w      io.Writer
	pretty bool
}

// NewWriter wraps w. With pretty set, responses are indented with two
// spaces instead of the default single line.
func NewWriter(w io.Writer, pretty bool) *Writer {
	return &Writer{w: w, pretty: pretty}
}

// Write marshals v and appends the delimiter line.
func (w *Writer) Write(v any) error {
	var data []byte
	var err error
	if w.pretty {
		data, err = json.Marshal(v, jsontext.WithIndent("  "))
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w.w, "%s\n%s\n", data, Delimiter)
	return err
}
