package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LedgerMetrics groups the business counters emitted by the application
// services. A nil *LedgerMetrics is valid and records nothing.
type LedgerMetrics struct {
	invoicesCreated   *Counter
	billingFailures   *Counter
	rowsImported      *Counter
	rowsDuplicate     *Counter
	rowErrors         *Counter
	classifications   *Counter
	postings          *Counter
	invoicesSettled   *Counter
	divergences       *Counter
	approvalsRequired *Counter
	operationDuration *Histogram
}

// NewLedgerMetrics registers the counters on meter. A nil meter uses the
// global provider.
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	if meter == nil {
		meter = otel.Meter(TracerName)
	}

	m := &LedgerMetrics{}
	counters := []struct {
		dst  **Counter
		name string
		desc string
	}{
		{&m.invoicesCreated, "billing_invoices_created_total", "Invoices created by billing runs"},
		{&m.billingFailures, "billing_member_failures_total", "Members whose invoice could not be generated"},
		{&m.rowsImported, "import_rows_imported_total", "Bank statement rows stored"},
		{&m.rowsDuplicate, "import_rows_duplicate_total", "Bank statement rows skipped as duplicates"},
		{&m.rowErrors, "import_row_errors_total", "Bank statement rows rejected by the parser"},
		{&m.classifications, "bank_transactions_classified_total", "Bank transactions classified"},
		{&m.postings, "ledger_postings_total", "Ledger postings written"},
		{&m.invoicesSettled, "ledger_invoices_settled_total", "Invoices settled by payment allocation"},
		{&m.divergences, "ledger_balance_divergence_total", "Accounts whose cached balance diverged from the ledger"},
		{&m.approvalsRequired, "approval_requests_total", "Dual-control approval requests issued"},
	}
	for _, c := range counters {
		counter, err := NewCounter(meter, c.name, c.desc, "1")
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	h, err := NewHistogram(meter, HistogramOpts{
		Name:        "ledger_operation_duration_seconds",
		Description: "Duration of ledger operations",
		Unit:        "s",
		Boundaries:  []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
	if err != nil {
		return nil, err
	}
	m.operationDuration = h
	return m, nil
}

func coopAttr(coop uuid.UUID) attribute.KeyValue {
	return AttrCooperativeID.String(coop.String())
}

// InvoicesCreated records a billing run outcome.
func (m *LedgerMetrics) InvoicesCreated(ctx context.Context, coop uuid.UUID, created, failed int) {
	if m == nil {
		return
	}
	m.invoicesCreated.Add(ctx, int64(created), coopAttr(coop))
	m.billingFailures.Add(ctx, int64(failed), coopAttr(coop))
}

// StatementImported records the row counts of one import.
func (m *LedgerMetrics) StatementImported(ctx context.Context, coop uuid.UUID, imported, duplicates, errors int) {
	if m == nil {
		return
	}
	m.rowsImported.Add(ctx, int64(imported), coopAttr(coop))
	m.rowsDuplicate.Add(ctx, int64(duplicates), coopAttr(coop))
	m.rowErrors.Add(ctx, int64(errors), coopAttr(coop))
}

// Classified records a classification by target kind.
func (m *LedgerMetrics) Classified(ctx context.Context, coop uuid.UUID, target string) {
	if m == nil {
		return
	}
	m.classifications.Inc(ctx, coopAttr(coop), AttrMatchTarget.String(target))
}

// Posted records a ledger posting by type.
func (m *LedgerMetrics) Posted(ctx context.Context, coop uuid.UUID, postingType string) {
	if m == nil {
		return
	}
	m.postings.Inc(ctx, coopAttr(coop), AttrPostingType.String(postingType))
}

// InvoicesSettled records invoices paid by one allocation.
func (m *LedgerMetrics) InvoicesSettled(ctx context.Context, coop uuid.UUID, n int) {
	if m == nil || n == 0 {
		return
	}
	m.invoicesSettled.Add(ctx, int64(n), coopAttr(coop))
}

// Divergences records accounts found diverged by verification.
func (m *LedgerMetrics) Divergences(ctx context.Context, coop uuid.UUID, n int) {
	if m == nil || n == 0 {
		return
	}
	m.divergences.Add(ctx, int64(n), coopAttr(coop))
}

// ApprovalRequested records an issued dual-control request.
func (m *LedgerMetrics) ApprovalRequested(ctx context.Context, coop uuid.UUID, action string) {
	if m == nil {
		return
	}
	m.approvalsRequired.Inc(ctx, coopAttr(coop), AttrOperation.String(action))
}

// ObserveDuration records how long operation took since start.
func (m *LedgerMetrics) ObserveDuration(ctx context.Context, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operationDuration.RecordDuration(ctx, time.Since(start),
		AttrOperation.String(operation), AttrOutcome.String(outcome))
}
