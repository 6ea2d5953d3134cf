package payroll

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"paysync/api/internal/store"
)

// fakePayrollStore mimics the store's transactional settlement: aggregation
// error aborts before build runs, insert error discards what build produced,
// otherwise the batch "commits" into inserted.
type fakePayrollStore struct {
	aggregates   []store.PayrollAggregate
	aggregateErr error
	insertErr    error

	calls    int
	inserted []store.SalaryPayment
	gotStart time.Time
	gotEnd   time.Time
}

func (f *fakePayrollStore) SettlePeriod(ctx context.Context, start, end time.Time, build func([]store.PayrollAggregate) []store.SalaryPayment) error {
	f.calls++
	f.gotStart, f.gotEnd = start, end
	if f.aggregateErr != nil {
		return f.aggregateErr
	}
	payments := build(f.aggregates)
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, payments...)
	return nil
}

func window() (time.Time, time.Time) {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
}

func TestSettlePeriodComputesAmounts(t *testing.T) {
	// Rate 150, two ledger entries of 4.0 and 3.5 hours -> one payment of
	// 7.5 hours, amount 1125.00.
	fake := &fakePayrollStore{
		aggregates: []store.PayrollAggregate{
			{EmployeeID: "emp_s", Name: "S", TotalHours: 7.5, HourlyWage: 150},
		},
	}
	service := New(fake)
	service.now = func() time.Time { return time.Date(2024, 2, 7, 0, 0, 0, 0, time.UTC) }

	start, end := window()
	result, err := service.SettlePeriod(context.Background(), start, end)
	if err != nil {
		t.Fatalf("SettlePeriod failed: %v", err)
	}

	if len(fake.inserted) != 1 {
		t.Fatalf("expected 1 payment, got %d", len(fake.inserted))
	}
	payment := fake.inserted[0]
	if payment.TotalHours != 7.5 {
		t.Fatalf("expected total hours 7.5, got %v", payment.TotalHours)
	}
	if payment.Amount != 1125.00 {
		t.Fatalf("expected amount 1125.00, got %v", payment.Amount)
	}
	if payment.Status != StatusRecorded {
		t.Fatalf("expected status %q, got %q", StatusRecorded, payment.Status)
	}
	if result["emp_s"] != payment.ID {
		t.Fatalf("result map should carry payment id %q, got %q", payment.ID, result["emp_s"])
	}
}

func TestSettlePeriodRoundsAmounts(t *testing.T) {
	fake := &fakePayrollStore{
		aggregates: []store.PayrollAggregate{
			{EmployeeID: "emp_1", TotalHours: 3.333, HourlyWage: 10},
		},
	}
	service := New(fake)

	start, end := window()
	if _, err := service.SettlePeriod(context.Background(), start, end); err != nil {
		t.Fatalf("SettlePeriod failed: %v", err)
	}

	payment := fake.inserted[0]
	if payment.TotalHours != 3.33 {
		t.Fatalf("expected hours rounded to 3.33, got %v", payment.TotalHours)
	}
	if payment.Amount != 33.30 {
		t.Fatalf("expected amount 33.30, got %v", payment.Amount)
	}
}

func TestSettlePeriodAbortsOnInsertFailure(t *testing.T) {
	// The whole settlement is one transaction: when an insert fails, the run
	// is aborted and no payment from the run exists.
	fake := &fakePayrollStore{
		aggregates: []store.PayrollAggregate{
			{EmployeeID: "emp_1", TotalHours: 4, HourlyWage: 100},
			{EmployeeID: "emp_2", TotalHours: 2, HourlyWage: 100},
		},
		insertErr: errors.New("insert failed for emp_2"),
	}
	service := New(fake)

	start, end := window()
	result, err := service.SettlePeriod(context.Background(), start, end)
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if result != nil {
		t.Fatalf("aborted settlement must return no payments, got %v", result)
	}
	if len(fake.inserted) != 0 {
		t.Fatalf("aborted settlement must persist nothing, got %d payments", len(fake.inserted))
	}
}

func TestSettlePeriodAbortsOnAggregateFailure(t *testing.T) {
	fake := &fakePayrollStore{aggregateErr: errors.New("db gone")}
	service := New(fake)

	start, end := window()
	if _, err := service.SettlePeriod(context.Background(), start, end); !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
}

func TestSettlePeriodEmptyWindow(t *testing.T) {
	fake := &fakePayrollStore{}
	service := New(fake)

	start, end := window()
	result, err := service.SettlePeriod(context.Background(), start, end)
	if err != nil {
		t.Fatalf("SettlePeriod failed: %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("expected empty result, got %v", result)
	}
	if len(fake.inserted) != 0 {
		t.Fatalf("no payments should be recorded for an empty window, got %d", len(fake.inserted))
	}
}

func TestSettlePeriodRunsAsOneStoreCall(t *testing.T) {
	// Aggregation and inserts travel together: the service hands the whole
	// run to the store in a single call so both sides share one transaction.
	fake := &fakePayrollStore{
		aggregates: []store.PayrollAggregate{
			{EmployeeID: "emp_1", TotalHours: 4, HourlyWage: 100},
		},
	}
	service := New(fake)

	start, end := window()
	if _, err := service.SettlePeriod(context.Background(), start, end); err != nil {
		t.Fatalf("SettlePeriod failed: %v", err)
	}
	if fake.calls != 1 {
		t.Fatalf("expected one store call for the whole run, got %d", fake.calls)
	}
	if !fake.gotStart.Equal(start) || !fake.gotEnd.Equal(end) {
		t.Fatalf("expected window [%s, %s), got [%s, %s)", start, end, fake.gotStart, fake.gotEnd)
	}
}

func TestSettlePeriodRejectsInvalidPeriod(t *testing.T) {
	service := New(&fakePayrollStore{})

	start, _ := window()
	if _, err := service.SettlePeriod(context.Background(), start, start); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestSettlePeriodRepeatedRunDuplicates(t *testing.T) {
	// There is no idempotency guard across runs: settling the same period
	// twice records two payments per employee.
	fake := &fakePayrollStore{
		aggregates: []store.PayrollAggregate{
			{EmployeeID: "emp_1", TotalHours: 4, HourlyWage: 100},
		},
	}
	service := New(fake)

	start, end := window()
	for i := 0; i < 2; i++ {
		if _, err := service.SettlePeriod(context.Background(), start, end); err != nil {
			t.Fatalf("SettlePeriod run %d failed: %v", i+1, err)
		}
	}
	if len(fake.inserted) != 2 {
		t.Fatalf("expected 2 payments from 2 runs, got %d", len(fake.inserted))
	}
	if fake.inserted[0].ID == fake.inserted[1].ID {
		t.Fatal("payments from separate runs must have distinct ids")
	}
}

func TestMonthToDate(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	start, end := MonthToDate(now)
	if !start.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected start of March, got %s", start)
	}
	if !end.Equal(now) {
		t.Fatalf("expected end now, got %s", end)
	}
	if !strings.HasPrefix(start.Location().String(), "UTC") {
		t.Fatalf("window must be UTC, got %s", start.Location())
	}
}
