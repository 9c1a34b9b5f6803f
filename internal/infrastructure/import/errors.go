package csvimport

import (
	"errors"
	"fmt"
)

// Codes attached to rejected statement rows.
const (
	ErrCodeMalformedRow  = "ERR_IMPORT_MALFORMED_ROW"
	ErrCodeRequiredField = "ERR_IMPORT_REQUIRED_FIELD"
	ErrCodeInvalidAmount = "ERR_IMPORT_INVALID_AMOUNT"
	ErrCodeInvalidDate   = "ERR_IMPORT_INVALID_DATE"
)

const defaultMaxRowErrors = 100

var (
	ErrEmptyFile = errors.New("statement has no rows")
	// ErrMissingHeader means the profile expects a header line the file lacks
	ErrMissingHeader = errors.New("statement header row missing")
	// ErrUnsupportedEncoding names an encoding outside the WHATWG index
	ErrUnsupportedEncoding = errors.New("unsupported statement encoding")
)

// RowError is one statement line the parser could not turn into a transaction.
// Row is the 1-based line number in the file.
type RowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

func (e RowError) Error() string {
	where := fmt.Sprintf("line %d", e.Row)
	if e.Column != "" {
		where += fmt.Sprintf(" (%s)", e.Column)
	}
	return where + ": " + e.Message
}

// ErrorCollection retains up to a limit of row errors while counting all.
type ErrorCollection struct {
	kept  []RowError
	limit int
	seen  int
}

// NewErrorCollection keeps at most limit errors, 100 when limit <= 0.
func NewErrorCollection(limit int) *ErrorCollection {
	if limit <= 0 {
		limit = defaultMaxRowErrors
	}
	return &ErrorCollection{kept: []RowError{}, limit: limit}
}

func (ec *ErrorCollection) Add(err RowError) {
	ec.seen++
	if len(ec.kept) < ec.limit {
		ec.kept = append(ec.kept, err)
	}
}

func (ec *ErrorCollection) Errors() []RowError {
	return ec.kept
}

// TotalCount counts every added error, kept or not.
func (ec *ErrorCollection) TotalCount() int {
	return ec.seen
}

func (ec *ErrorCollection) IsTruncated() bool {
	return ec.seen > len(ec.kept)
}
