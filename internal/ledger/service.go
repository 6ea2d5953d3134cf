// Package ledger owns every write to the work-time ledger. All ingestion
// paths go through the Reconciler so the uniqueness and derivation rules
// hold no matter which source produced a span.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paysync/api/internal/store"
	"paysync/api/internal/util"
)

// ErrInvalidInterval rejects spans whose end does not come after their
// start. Nothing is persisted for such a span.
var ErrInvalidInterval = errors.New("invalid interval")

type ledgerStore interface {
	UpsertWorkTime(ctx context.Context, rec store.WorkTimeRecord) error
}

type Reconciler struct {
	store ledgerStore
}

func NewReconciler(s ledgerStore) *Reconciler {
	return &Reconciler{store: s}
}

// Reconcile upserts one ledger entry keyed on (employee, integration,
// start). Hours are always recomputed from the interval, rounded to two
// decimals; whatever duration the source claimed is discarded. Re-ingesting
// the same interval overwrites end and hours in place, so the final ledger
// state is idempotent under re-delivery.
func (r *Reconciler) Reconcile(ctx context.Context, employeeID, integrationID string, start, end time.Time) error {
	if !end.After(start) {
		return fmt.Errorf("%w: end %s is not after start %s", ErrInvalidInterval,
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	rec := store.WorkTimeRecord{
		EmployeeID:    employeeID,
		IntegrationID: integrationID,
		StartTime:     start.UTC(),
		EndTime:       end.UTC(),
		Hours:         util.Round2(end.Sub(start).Hours()),
	}
	if err := r.store.UpsertWorkTime(ctx, rec); err != nil {
		return fmt.Errorf("reconcile span: %w", err)
	}
	return nil
}
