package approval

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PostingSubject fingerprints a gated posting: correction or withdrawal.
// The confirming call must carry exactly the parameters that were requested.
func PostingSubject(memberID uuid.UUID, amount decimal.Decimal, date time.Time, description string) string {
	return Fingerprint(
		memberID.String(),
		amount.StringFixed(2),
		date.Format(time.DateOnly),
		strings.TrimSpace(description),
	)
}

// ResolveSubject fingerprints the reset of a halted account
func ResolveSubject(memberID uuid.UUID) string {
	return Fingerprint("resolve", memberID.String())
}
