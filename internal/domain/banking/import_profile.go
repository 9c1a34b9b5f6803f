// Package banking covers the cooperative's bank account: how its CSV
// statements are read, the transactions they contain, and how each
// transaction is attributed to a member or a cost.
package banking

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Canonical field keys of a bank statement row
const (
	FieldBookingDate = "booking_date"
	FieldValueDate   = "value_date"
	FieldAmount      = "amount"
	FieldPurpose     = "purpose"
	FieldPayee       = "payee"
	FieldAccount     = "account"
	FieldBIC         = "bic"
)

var positionalAlias = regexp.MustCompile(`^Field([1-9][0-9]*)$`)

// ColumnMapping maps canonical fields to the column names of the bank export.
// For header-less exports the names are positional aliases like "Field3".
type ColumnMapping struct {
	BookingDate string `json:"booking_date"`
	ValueDate   string `json:"value_date,omitempty"`
	Amount      string `json:"amount"`
	Purpose     string `json:"purpose,omitempty"`
	Payee       string `json:"payee,omitempty"`
	Account     string `json:"account,omitempty"`
	BIC         string `json:"bic,omitempty"`
}

// Entries returns canonical field -> configured column for every mapped field
func (m ColumnMapping) Entries() map[string]string {
	entries := map[string]string{
		FieldBookingDate: m.BookingDate,
		FieldValueDate:   m.ValueDate,
		FieldAmount:      m.Amount,
		FieldPurpose:     m.Purpose,
		FieldPayee:       m.Payee,
		FieldAccount:     m.Account,
		FieldBIC:         m.BIC,
	}
	for k, v := range entries {
		if strings.TrimSpace(v) == "" {
			delete(entries, k)
		}
	}
	return entries
}

// ImportProfile describes one cooperative's bank CSV dialect
type ImportProfile struct {
	shared.BaseEntity
	CooperativeID      uuid.UUID
	Delimiter          string
	Encoding           string
	Columns            ColumnMapping
	DecimalSeparator   string
	ThousandsSeparator string
	DateFormat         string
	HeaderPresent      bool
	LinesToSkip        int
}

// DefaultImportProfile returns the layout of a typical German online-banking export
func DefaultImportProfile(cooperativeID uuid.UUID) *ImportProfile {
	return &ImportProfile{
		BaseEntity:    shared.NewBaseEntity(),
		CooperativeID: cooperativeID,
		Delimiter:     ";",
		Encoding:      "windows-1252",
		Columns: ColumnMapping{
			BookingDate: "Buchungstag",
			ValueDate:   "Valutadatum",
			Amount:      "Betrag",
			Purpose:     "Verwendungszweck",
			Payee:       "Beguenstigter/Zahlungspflichtiger",
			Account:     "Kontonummer/IBAN",
			BIC:         "BIC (SWIFT-Code)",
		},
		DecimalSeparator:   ",",
		ThousandsSeparator: ".",
		DateFormat:         "DD.MM.YYYY",
		HeaderPresent:      true,
		LinesToSkip:        0,
	}
}

// Validate checks the profile for structural problems. Column problems name
// the offending column.
func (p *ImportProfile) Validate() error {
	if utf8.RuneCountInString(p.Delimiter) != 1 {
		return shared.ErrConfiguration.Withf("Delimiter must be exactly one character, got %q", p.Delimiter)
	}
	if utf8.RuneCountInString(p.DecimalSeparator) != 1 {
		return shared.ErrConfiguration.Withf("Decimal separator must be exactly one character, got %q", p.DecimalSeparator)
	}
	if utf8.RuneCountInString(p.ThousandsSeparator) > 1 {
		return shared.ErrConfiguration.Withf("Thousands separator must be at most one character, got %q", p.ThousandsSeparator)
	}
	if p.ThousandsSeparator == p.DecimalSeparator {
		return shared.ErrConfiguration.Withf("Thousands and decimal separator are both %q", p.DecimalSeparator)
	}
	if p.Delimiter == p.DecimalSeparator {
		return shared.ErrConfiguration.Withf("Delimiter and decimal separator are both %q", p.Delimiter)
	}
	if strings.TrimSpace(p.DateFormat) == "" {
		return shared.ErrConfiguration.Withf("Date format is required")
	}
	if p.LinesToSkip < 0 {
		return shared.ErrConfiguration.Withf("Lines to skip cannot be negative")
	}
	if strings.TrimSpace(p.Columns.BookingDate) == "" {
		return shared.ErrConfiguration.Withf("Column mapping for %q is missing", FieldBookingDate)
	}
	if strings.TrimSpace(p.Columns.Amount) == "" {
		return shared.ErrConfiguration.Withf("Column mapping for %q is missing", FieldAmount)
	}
	if !p.HeaderPresent {
		for field, column := range p.Columns.Entries() {
			if _, ok := PositionalIndex(column); !ok {
				return shared.ErrConfiguration.Withf(
					"Column %q for %q must be a positional alias like Field1 when the file has no header", column, field)
			}
		}
	}
	return nil
}

// GoDateLayout converts the configured date format into a Go time layout.
// Formats already written as Go layouts are returned unchanged.
func (p *ImportProfile) GoDateLayout() string {
	format := strings.TrimSpace(p.DateFormat)
	if strings.ContainsAny(format, "0123456789") {
		return format
	}
	r := strings.NewReplacer(
		"YYYY", "2006",
		"yyyy", "2006",
		"YY", "06",
		"yy", "06",
		"MM", "01",
		"DD", "02",
		"dd", "02",
	)
	return r.Replace(format)
}

// PositionalAlias returns the synthetic column name for a 1-based position
func PositionalAlias(position int) string {
	return "Field" + strconv.Itoa(position)
}

// PositionalIndex parses "FieldN" into its 0-based column index
func PositionalIndex(alias string) (int, bool) {
	m := positionalAlias.FindStringSubmatch(strings.TrimSpace(alias))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n - 1, true
}

// ImportProfileRepository stores one profile per cooperative
type ImportProfileRepository interface {
	FindByCooperative(ctx context.Context, cooperativeID uuid.UUID) (*ImportProfile, error)
	Save(ctx context.Context, profile *ImportProfile) error
}
