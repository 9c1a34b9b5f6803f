// Package csvimport reads bank statement exports: it decodes the file,
// skips preamble lines, splits records and maps them onto statement rows.
package csvimport

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVParser splits a decoded CSV stream into records
type CSVParser struct {
	delimiter rune
	encoding  string
	skipLines int
	headerMap map[string]int
	headers   []string
	reader    *csv.Reader
}

// ParserOption configures a CSVParser
type ParserOption func(*CSVParser)

// WithDelimiter sets the field delimiter (default ',')
func WithDelimiter(d rune) ParserOption {
	return func(p *CSVParser) {
		p.delimiter = d
	}
}

// WithEncoding sets the source encoding by WHATWG label, e.g. "windows-1252"
func WithEncoding(label string) ParserOption {
	return func(p *CSVParser) {
		p.encoding = label
	}
}

// WithSkipLines drops n physical lines before the first record
func WithSkipLines(n int) ParserOption {
	return func(p *CSVParser) {
		p.skipLines = n
	}
}

// NewCSVParser decodes r to UTF-8, strips a BOM and skips the configured
// preamble. The returned parser has not read any record yet.
func NewCSVParser(r io.Reader, opts ...ParserOption) (*CSVParser, error) {
	p := &CSVParser{
		delimiter: ',',
		encoding:  "utf-8",
		headerMap: make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}

	enc, err := htmlindex.Get(strings.TrimSpace(p.encoding))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, p.encoding)
	}

	// A BOM marks the file as UTF-8 whatever the profile says
	raw := bufio.NewReader(r)
	if head, err := raw.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = raw.Discard(len(utf8BOM))
		enc = unicode.UTF8
	}
	buf := bufio.NewReader(transform.NewReader(raw, enc.NewDecoder()))

	for i := 0; i < p.skipLines; i++ {
		if _, err := buf.ReadString('\n'); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrEmptyFile
			}
			return nil, fmt.Errorf("failed to skip line %d: %w", i+1, err)
		}
	}

	if _, err := buf.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	p.reader = csv.NewReader(buf)
	p.reader.Comma = p.delimiter
	p.reader.LazyQuotes = true
	p.reader.TrimLeadingSpace = true
	p.reader.FieldsPerRecord = -1
	return p, nil
}

// ParseHeader consumes the first record as the header row
func (p *CSVParser) ParseHeader() error {
	record, err := p.reader.Read()
	if errors.Is(err, io.EOF) {
		return ErrMissingHeader
	}
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}

	p.headers = make([]string, len(record))
	for i, h := range record {
		h = strings.TrimSpace(h)
		p.headers[i] = h
		if _, dup := p.headerMap[h]; !dup {
			p.headerMap[h] = i
		}
	}
	return nil
}

// Headers returns the parsed header names
func (p *CSVParser) Headers() []string {
	return p.headers
}

// ColumnIndex returns the index of a header column
func (p *CSVParser) ColumnIndex(name string) (int, bool) {
	idx, ok := p.headerMap[strings.TrimSpace(name)]
	return idx, ok
}

// Row is one record with its physical line number in the original file
type Row struct {
	LineNumber int
	Fields     []string
}

// Field returns the trimmed value at idx, or "" when the row is short
func (r *Row) Field(idx int) string {
	if idx < 0 || idx >= len(r.Fields) {
		return ""
	}
	return strings.TrimSpace(r.Fields[idx])
}

// IsEmpty reports whether every field is blank
func (r *Row) IsEmpty() bool {
	for _, f := range r.Fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// ReadRow returns the next record or io.EOF. A malformed record yields a
// *RowError and the parser stays usable.
func (p *CSVParser) ReadRow() (*Row, error) {
	record, err := p.reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		var parseErr *csv.ParseError
		line := 0
		if errors.As(err, &parseErr) {
			line = parseErr.StartLine + p.skipLines
		}
		return nil, &RowError{Row: line, Code: ErrCodeMalformedRow, Message: err.Error()}
	}

	line, _ := p.reader.FieldPos(0)
	return &Row{LineNumber: line + p.skipLines, Fields: record}, nil
}
