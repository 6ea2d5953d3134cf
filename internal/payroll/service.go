// Package payroll settles accrued ledger hours into salary payment records.
// Settlement records payments; it does not move money.
package payroll

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"paysync/api/internal/store"
	"paysync/api/internal/util"
)

// StatusRecorded is the fixed status every payment carries on creation.
// Payments are append-only and never mutated afterwards.
const StatusRecorded = "recorded"

var (
	// ErrAborted marks a settlement run that rolled back; nothing from the
	// run was persisted.
	ErrAborted = errors.New("settlement aborted")

	ErrInvalidPeriod = errors.New("invalid settlement period")
)

type payrollStore interface {
	// SettlePeriod runs the aggregation, the build callback, and the payment
	// inserts on one transaction holding a write scope over the window's
	// ledger rows.
	SettlePeriod(ctx context.Context, periodStart, periodEnd time.Time, build func([]store.PayrollAggregate) []store.SalaryPayment) error
}

type Service struct {
	store payrollStore
	now   func() time.Time
}

func New(s payrollStore) *Service {
	return &Service{store: s, now: time.Now}
}

// SettlePeriod aggregates ledger hours per employee for intervals starting in
// [periodStart, periodEnd), computes amount = round2(hours * wage), and
// records one payment per employee. Aggregation and the payment inserts run
// on a single store transaction: the window's ledger rows are locked while
// the totals are read, and any failure aborts the whole run with nothing
// persisted.
//
// There is deliberately no guard against settling the same period twice; a
// repeated run records a second payment per employee. Deduplication is an
// operator concern until a settlement key is introduced.
func (s *Service) SettlePeriod(ctx context.Context, periodStart, periodEnd time.Time) (map[string]string, error) {
	if !periodEnd.After(periodStart) {
		return nil, fmt.Errorf("%w: end %s is not after start %s", ErrInvalidPeriod,
			periodEnd.Format(time.RFC3339), periodStart.Format(time.RFC3339))
	}

	paymentDate := s.now().UTC().Truncate(24 * time.Hour)
	result := map[string]string{}
	var payments []store.SalaryPayment

	err := s.store.SettlePeriod(ctx, periodStart.UTC(), periodEnd.UTC(), func(aggregates []store.PayrollAggregate) []store.SalaryPayment {
		for _, agg := range aggregates {
			totalHours := util.Round2(agg.TotalHours)
			payment := store.SalaryPayment{
				ID:          util.NewID("pay"),
				EmployeeID:  agg.EmployeeID,
				PaymentDate: paymentDate,
				TotalHours:  totalHours,
				Amount:      util.Round2(totalHours * agg.HourlyWage),
				Status:      StatusRecorded,
			}
			payments = append(payments, payment)
			result[agg.EmployeeID] = payment.ID
		}
		return payments
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAborted, err)
	}

	if len(payments) == 0 {
		log.Printf("payroll: no worked hours in [%s, %s), nothing to settle",
			periodStart.Format(time.RFC3339), periodEnd.Format(time.RFC3339))
		return map[string]string{}, nil
	}
	for _, p := range payments {
		log.Printf("payroll: recorded payment %s for employee %s: %.2f hours, amount %.2f",
			p.ID, p.EmployeeID, p.TotalHours, p.Amount)
	}
	return result, nil
}

// MonthToDate is the window the scheduled settlement uses: start of the
// current month up to now.
func MonthToDate(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, now
}
