package csvimport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/coopledger/backend/internal/domain/banking"
	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// StatementRow is one successfully parsed statement line
type StatementRow struct {
	Line        int
	BookingDate time.Time
	ValueDate   *time.Time
	Amount      decimal.Decimal
	Purpose     string
	Payee       string
	Account     string
	BIC         string
}

// Statement is the outcome of parsing a whole file. Rejected rows are
// collected, never fatal.
type Statement struct {
	Rows      []StatementRow
	Errors    *ErrorCollection
	TotalRows int
}

// StatementParser applies an import profile to raw statement bytes
type StatementParser struct {
	profile   *banking.ImportProfile
	maxErrors int
}

// NewStatementParser creates a parser for profile. maxErrors caps the row
// errors retained in the result.
func NewStatementParser(profile *banking.ImportProfile, maxErrors int) *StatementParser {
	return &StatementParser{profile: profile, maxErrors: maxErrors}
}

// Parse reads data. Profile problems are shared.ErrConfiguration, an
// unreadable file is shared.ErrParse. Row problems land in Statement.Errors.
func (sp *StatementParser) Parse(data []byte) (*Statement, error) {
	if err := sp.profile.Validate(); err != nil {
		return nil, err
	}

	delim, _ := utf8.DecodeRuneInString(sp.profile.Delimiter)
	parser, err := NewCSVParser(bytes.NewReader(data),
		WithDelimiter(delim),
		WithEncoding(sp.profile.Encoding),
		WithSkipLines(sp.profile.LinesToSkip),
	)
	switch {
	case errors.Is(err, ErrUnsupportedEncoding):
		return nil, shared.ErrConfiguration.Withf("Encoding %q is not supported", sp.profile.Encoding)
	case errors.Is(err, ErrEmptyFile):
		return &Statement{Errors: NewErrorCollection(sp.maxErrors)}, nil
	case err != nil:
		return nil, shared.ErrParse.Withf("%v", err)
	}

	columns, err := sp.resolveColumns(parser)
	if err != nil {
		return nil, err
	}

	stmt := &Statement{Errors: NewErrorCollection(sp.maxErrors)}
	for {
		row, err := parser.ReadRow()
		if errors.Is(err, io.EOF) {
			break
		}
		var rowErr *RowError
		if errors.As(err, &rowErr) {
			stmt.TotalRows++
			stmt.Errors.Add(*rowErr)
			continue
		}
		if err != nil {
			return nil, shared.ErrParse.Withf("%v", err)
		}
		if row.IsEmpty() {
			continue
		}

		stmt.TotalRows++
		parsed, rowErr := sp.parseRow(row, columns)
		if rowErr != nil {
			stmt.Errors.Add(*rowErr)
			continue
		}
		stmt.Rows = append(stmt.Rows, parsed)
	}
	return stmt, nil
}

// resolveColumns maps each configured field to a column index
func (sp *StatementParser) resolveColumns(parser *CSVParser) (map[string]int, error) {
	entries := sp.profile.Columns.Entries()
	columns := make(map[string]int, len(entries))

	if !sp.profile.HeaderPresent {
		for field, alias := range entries {
			idx, _ := banking.PositionalIndex(alias)
			columns[field] = idx
		}
		return columns, nil
	}

	if err := parser.ParseHeader(); err != nil {
		return nil, shared.ErrParse.Withf("%v", err)
	}
	for field, name := range entries {
		idx, ok := parser.ColumnIndex(name)
		if !ok {
			return nil, shared.ErrConfiguration.Withf("Column %q for %q not found in header", name, field)
		}
		columns[field] = idx
	}
	return columns, nil
}

func (sp *StatementParser) parseRow(row *Row, columns map[string]int) (StatementRow, *RowError) {
	get := func(field string) (string, string) {
		idx, ok := columns[field]
		if !ok {
			return "", ""
		}
		return row.Field(idx), sp.columnName(field)
	}
	fail := func(column, code, msg, value string) (StatementRow, *RowError) {
		return StatementRow{}, &RowError{Row: row.LineNumber, Column: column, Code: code, Message: msg, Value: value}
	}

	layout := sp.profile.GoDateLayout()

	raw, col := get(banking.FieldBookingDate)
	if raw == "" {
		return fail(col, ErrCodeRequiredField, "booking date is required", "")
	}
	booking, err := ParseDate(raw, layout)
	if err != nil {
		return fail(col, ErrCodeInvalidDate, fmt.Sprintf("expected date format %s", sp.profile.DateFormat), raw)
	}

	out := StatementRow{Line: row.LineNumber, BookingDate: booking}

	if raw, col := get(banking.FieldValueDate); raw != "" {
		valueDate, err := ParseDate(raw, layout)
		if err != nil {
			return fail(col, ErrCodeInvalidDate, fmt.Sprintf("expected date format %s", sp.profile.DateFormat), raw)
		}
		out.ValueDate = &valueDate
	}

	raw, col = get(banking.FieldAmount)
	if raw == "" {
		return fail(col, ErrCodeRequiredField, "amount is required", "")
	}
	amount, err := ParseAmount(raw, sp.profile.DecimalSeparator, sp.profile.ThousandsSeparator)
	if err != nil {
		return fail(col, ErrCodeInvalidAmount, err.Error(), raw)
	}
	if amount.IsZero() {
		return fail(col, ErrCodeInvalidAmount, "amount must not be zero", raw)
	}
	out.Amount = amount

	out.Purpose, _ = get(banking.FieldPurpose)
	out.Payee, _ = get(banking.FieldPayee)
	out.Account, _ = get(banking.FieldAccount)
	out.BIC, _ = get(banking.FieldBIC)
	return out, nil
}

func (sp *StatementParser) columnName(field string) string {
	return sp.profile.Columns.Entries()[field]
}

var (
	amountPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
	errNotANumber = errors.New("not a number")
)

// ParseAmount parses a locale formatted amount such as "-1.234,56".
// Leading or trailing signs and a trailing currency marker are accepted.
func ParseAmount(raw, decimalSep, thousandsSep string) (decimal.Decimal, error) {
	s := strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "").Replace(strings.TrimSpace(raw))
	for _, suffix := range []string{"EUR", "€"} {
		s = strings.TrimSuffix(s, suffix)
	}

	negative := false
	switch {
	case strings.HasPrefix(s, "-"):
		negative, s = true, s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasSuffix(s, "-"):
		negative, s = true, s[:len(s)-1]
	}

	if thousandsSep != "" {
		s = strings.ReplaceAll(s, thousandsSep, "")
	}
	if decimalSep != "." {
		if strings.Contains(s, ".") {
			return decimal.Zero, fmt.Errorf("unexpected '.' in amount, decimal separator is %q", decimalSep)
		}
		s = strings.Replace(s, decimalSep, ".", 1)
	}
	if !amountPattern.MatchString(s) {
		return decimal.Zero, errNotANumber
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errNotANumber
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParseDate parses raw with a Go layout and truncates to a UTC calendar day
func ParseDate(raw, layout string) (time.Time, error) {
	t, err := time.ParseInLocation(layout, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}
