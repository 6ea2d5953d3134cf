package store

import "time"

// Employee is read-only reference data for the sync and settlement paths:
// the directory resolves spans to it by email, settlement reads its wage.
// Lifecycle (hiring, wage changes, bank details) is managed elsewhere.
type Employee struct {
	ID          string
	Name        string
	Email       string
	HourlyWage  float64
	Position    string
	BankAccount string
	BankName    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Integration struct {
	ID         string
	Kind       string
	Name       string
	Credential string
	Config     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// WorkTimeRecord is one ledger entry. At most one row exists per
// (EmployeeID, IntegrationID, StartTime); re-ingesting the same interval
// overwrites EndTime and Hours in place.
type WorkTimeRecord struct {
	ID            int64
	EmployeeID    string
	IntegrationID string
	StartTime     time.Time
	EndTime       time.Time
	Hours         float64
	CreatedAt     time.Time
}

// SalaryPayment is append-only settlement output; rows are never mutated.
type SalaryPayment struct {
	ID          string
	EmployeeID  string
	PaymentDate time.Time
	TotalHours  float64
	Amount      float64
	Status      string
	CreatedAt   time.Time
}

// PayrollAggregate is one employee's summed ledger hours for a settlement
// window, joined with the wage in force at aggregation time.
type PayrollAggregate struct {
	EmployeeID string
	Name       string
	TotalHours float64
	HourlyWage float64
}
