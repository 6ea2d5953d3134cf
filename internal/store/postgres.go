package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- Employee directory (read-only for the core) ----

// ResolveEmployeeByEmail maps a source-native identifier to an employee id.
// Returns ("", nil) when no employee matches; the caller drops the span.
func (s *PostgresStore) ResolveEmployeeByEmail(ctx context.Context, email string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM employees WHERE email=$1`, email).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve employee by email: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetEmployee(ctx context.Context, employeeID string) (Employee, error) {
	var e Employee
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, hourly_wage, position, bank_account, bank_name, created_at, updated_at
		FROM employees
		WHERE id=$1
	`, employeeID).Scan(&e.ID, &e.Name, &e.Email, &e.HourlyWage, &e.Position, &e.BankAccount, &e.BankName, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return Employee{}, err
	}
	return e, nil
}

// ---- Integration registry ----

func (s *PostgresStore) ListIntegrations(ctx context.Context) ([]Integration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, name, credential, config, created_at, updated_at
		FROM integrations
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	defer rows.Close()

	items := make([]Integration, 0)
	for rows.Next() {
		var item Integration
		if err := rows.Scan(&item.ID, &item.Kind, &item.Name, &item.Credential, &item.Config, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate integrations: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetIntegration(ctx context.Context, integrationID string) (Integration, error) {
	var item Integration
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, name, credential, config, created_at, updated_at
		FROM integrations
		WHERE id=$1
	`, integrationID).Scan(&item.ID, &item.Kind, &item.Name, &item.Credential, &item.Config, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Integration{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertIntegration(ctx context.Context, item Integration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO integrations (id, kind, name, credential, config)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.Kind, item.Name, item.Credential, item.Config)
	if err != nil {
		return fmt.Errorf("insert integration: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateIntegration(ctx context.Context, integrationID, name, credential, config string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE integrations
		SET name=$2, credential=$3, config=$4, updated_at=NOW()
		WHERE id=$1
	`, integrationID, name, credential, config)
	if err != nil {
		return fmt.Errorf("update integration: %w", err)
	}
	return nil
}

// DeleteIntegration removes the integration; its ledger rows go with it via
// the worktime_records cascade.
func (s *PostgresStore) DeleteIntegration(ctx context.Context, integrationID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM integrations WHERE id=$1`, integrationID)
	if err != nil {
		return fmt.Errorf("delete integration: %w", err)
	}
	return nil
}

// ---- Work-time ledger ----

// UpsertWorkTime writes one ledger entry. The ON CONFLICT target is the
// ledger's uniqueness key; a replayed interval overwrites end_time and hours
// instead of duplicating, and the store's row lock serializes concurrent
// writers to the same key.
func (s *PostgresStore) UpsertWorkTime(ctx context.Context, rec WorkTimeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO worktime_records (employee_id, integration_id, start_time, end_time, hours)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (employee_id, integration_id, start_time)
		DO UPDATE SET end_time=EXCLUDED.end_time, hours=EXCLUDED.hours
	`, rec.EmployeeID, rec.IntegrationID, rec.StartTime, rec.EndTime, rec.Hours)
	if err != nil {
		return fmt.Errorf("upsert worktime: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListWorkTime(ctx context.Context, employeeID string) ([]WorkTimeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, employee_id, integration_id, start_time, end_time, hours, created_at
		FROM worktime_records
		WHERE employee_id=$1
		ORDER BY start_time DESC
	`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("list worktime: %w", err)
	}
	defer rows.Close()

	items := make([]WorkTimeRecord, 0)
	for rows.Next() {
		var item WorkTimeRecord
		if err := rows.Scan(&item.ID, &item.EmployeeID, &item.IntegrationID, &item.StartTime, &item.EndTime, &item.Hours, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan worktime: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate worktime: %w", err)
	}
	return items, nil
}

// ---- Settlement ----

// SettlePeriod runs one whole settlement inside a single transaction: lock
// the ledger rows in the window, aggregate hours per employee, insert the
// payments build derives from the aggregates, commit. A concurrent ledger
// write to an aggregated row blocks until the commit, so the recorded totals
// always match the ledger state the transaction read. Any failure rolls the
// whole run back; a settlement never persists partially.
func (s *PostgresStore) SettlePeriod(ctx context.Context, periodStart, periodEnd time.Time, build func([]PayrollAggregate) []SalaryPayment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settlement tx: %w", err)
	}

	// FOR UPDATE is not allowed on a grouped query, so the window's rows are
	// locked first and aggregated second.
	if _, err := tx.ExecContext(ctx, `
		SELECT id FROM worktime_records
		WHERE start_time >= $1 AND start_time < $2
		FOR UPDATE
	`, periodStart, periodEnd); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("lock settlement window: %w", err)
	}

	aggregates, err := aggregateWorkedHours(ctx, tx, periodStart, periodEnd)
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	for _, p := range build(aggregates) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO salary_payments (id, employee_id, payment_date, total_hours, amount, status)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, p.ID, p.EmployeeID, p.PaymentDate, p.TotalHours, p.Amount, p.Status); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert salary payment for %s: %w", p.EmployeeID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settlement tx: %w", err)
	}
	return nil
}

// aggregateWorkedHours sums ledger hours per employee for intervals whose
// start falls in [periodStart, periodEnd), joined with the current wage.
func aggregateWorkedHours(ctx context.Context, tx *sql.Tx, periodStart, periodEnd time.Time) ([]PayrollAggregate, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT e.id, e.name, SUM(w.hours), e.hourly_wage
		FROM employees e
		JOIN worktime_records w ON w.employee_id = e.id
		WHERE w.start_time >= $1 AND w.start_time < $2
		GROUP BY e.id, e.name, e.hourly_wage
		ORDER BY e.id
	`, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("aggregate worked hours: %w", err)
	}
	defer rows.Close()

	items := make([]PayrollAggregate, 0)
	for rows.Next() {
		var item PayrollAggregate
		if err := rows.Scan(&item.EmployeeID, &item.Name, &item.TotalHours, &item.HourlyWage); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregates: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListSalaryPayments(ctx context.Context, employeeID string) ([]SalaryPayment, error) {
	query := `
		SELECT id, employee_id, payment_date, total_hours, amount, status, created_at
		FROM salary_payments
	`
	args := []any{}
	if employeeID != "" {
		query += ` WHERE employee_id=$1`
		args = append(args, employeeID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list salary payments: %w", err)
	}
	defer rows.Close()

	items := make([]SalaryPayment, 0)
	for rows.Next() {
		var item SalaryPayment
		if err := rows.Scan(&item.ID, &item.EmployeeID, &item.PaymentDate, &item.TotalHours, &item.Amount, &item.Status, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan salary payment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate salary payments: %w", err)
	}
	return items, nil
}
