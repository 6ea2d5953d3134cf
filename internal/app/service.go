package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"paysync/api/internal/config"
	"paysync/api/internal/source"
	"paysync/api/internal/store"
	syncsvc "paysync/api/internal/sync"
	"paysync/api/internal/util"
)

type dataStore interface {
	Ping(ctx context.Context) error
	ListIntegrations(ctx context.Context) ([]store.Integration, error)
	GetIntegration(ctx context.Context, integrationID string) (store.Integration, error)
	InsertIntegration(ctx context.Context, item store.Integration) error
	UpdateIntegration(ctx context.Context, integrationID, name, credential, config string) error
	DeleteIntegration(ctx context.Context, integrationID string) error
	ListSalaryPayments(ctx context.Context, employeeID string) ([]store.SalaryPayment, error)
}

type syncRunner interface {
	RunAll(ctx context.Context) (syncsvc.Summary, error)
	RefreshOne(ctx context.Context, integrationID string) error
	LastRun(ctx context.Context) (syncsvc.Summary, bool, error)
}

type settler interface {
	SettlePeriod(ctx context.Context, periodStart, periodEnd time.Time) (map[string]string, error)
}

type adapterRegistry interface {
	ForKind(kind string) (source.Adapter, error)
}

// Service is the facade the HTTP surface talks to: manual sync and
// settlement triggers, the integration registry with verify-before-persist,
// and payment visibility.
type Service struct {
	cfg      config.Config
	store    dataStore
	sync     syncRunner
	payroll  settler
	adapters adapterRegistry
	now      func() time.Time
}

func New(cfg config.Config, dataStore dataStore, sync syncRunner, payroll settler, adapters adapterRegistry) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sync:     sync,
		payroll:  payroll,
		adapters: adapters,
		now:      time.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ---- Manual triggers ----

func (s *Service) RunSync(ctx context.Context) (syncsvc.Summary, error) {
	return s.sync.RunAll(ctx)
}

func (s *Service) LastSync(ctx context.Context) (syncsvc.Summary, bool, error) {
	return s.sync.LastRun(ctx)
}

// SettlePeriod settles an explicit window; zero times mean month-to-date.
func (s *Service) SettlePeriod(ctx context.Context, periodStart, periodEnd time.Time) (map[string]string, error) {
	if periodStart.IsZero() && periodEnd.IsZero() {
		now := s.now().UTC()
		periodStart = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		periodEnd = now
	}
	return s.payroll.SettlePeriod(ctx, periodStart, periodEnd)
}

// ---- Integration registry ----

type IntegrationInput struct {
	Kind       string `json:"kind"`
	Name       string `json:"name"`
	Credential string `json:"credential"`
	Config     string `json:"config"`
}

func (s *Service) ListIntegrations(ctx context.Context) ([]store.Integration, error) {
	return s.store.ListIntegrations(ctx)
}

func (s *Service) GetIntegration(ctx context.Context, integrationID string) (store.Integration, error) {
	return s.store.GetIntegration(ctx, integrationID)
}

// CreateIntegration verifies the credential with one probe fetch before
// anything is persisted; a bad credential never reaches the registry.
func (s *Service) CreateIntegration(ctx context.Context, input IntegrationInput) (store.Integration, error) {
	if strings.TrimSpace(input.Name) == "" || strings.TrimSpace(input.Credential) == "" {
		return store.Integration{}, domainError(http.StatusBadRequest, "INVALID_BODY", "name and credential are required", nil)
	}
	if err := s.VerifySource(ctx, input.Kind, input.Credential, input.Config); err != nil {
		return store.Integration{}, err
	}

	item := store.Integration{
		ID:         util.NewID("int"),
		Kind:       input.Kind,
		Name:       input.Name,
		Credential: input.Credential,
		Config:     input.Config,
	}
	if err := s.store.InsertIntegration(ctx, item); err != nil {
		return store.Integration{}, err
	}
	return item, nil
}

// UpdateIntegration re-verifies whenever the credential or config changes.
func (s *Service) UpdateIntegration(ctx context.Context, integrationID string, input IntegrationInput) (store.Integration, error) {
	existing, err := s.store.GetIntegration(ctx, integrationID)
	if err != nil {
		return store.Integration{}, err
	}

	name := existing.Name
	if strings.TrimSpace(input.Name) != "" {
		name = input.Name
	}
	credential := existing.Credential
	cfg := existing.Config
	if strings.TrimSpace(input.Credential) != "" || strings.TrimSpace(input.Config) != "" {
		if strings.TrimSpace(input.Credential) != "" {
			credential = input.Credential
		}
		if strings.TrimSpace(input.Config) != "" {
			cfg = input.Config
		}
		if err := s.VerifySource(ctx, existing.Kind, credential, cfg); err != nil {
			return store.Integration{}, err
		}
	}

	if err := s.store.UpdateIntegration(ctx, integrationID, name, credential, cfg); err != nil {
		return store.Integration{}, err
	}
	return s.store.GetIntegration(ctx, integrationID)
}

// DeleteIntegration removes the integration and, through the store cascade,
// every ledger row it produced.
func (s *Service) DeleteIntegration(ctx context.Context, integrationID string) error {
	if _, err := s.store.GetIntegration(ctx, integrationID); err != nil {
		return err
	}
	return s.store.DeleteIntegration(ctx, integrationID)
}

func (s *Service) RefreshIntegration(ctx context.Context, integrationID string) error {
	return s.sync.RefreshOne(ctx, integrationID)
}

// VerifySource checks a credential against the live source without
// persisting anything.
func (s *Service) VerifySource(ctx context.Context, kind, credential, cfg string) error {
	adapter, err := s.adapters.ForKind(kind)
	if err != nil {
		return domainError(http.StatusBadRequest, "UNKNOWN_KIND",
			fmt.Sprintf("unknown source kind %q, want one of %s", kind, strings.Join(source.Kinds(), ", ")), nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SourceTimeout)
	defer cancel()
	return adapter.Verify(ctx, credential, cfg)
}

// ---- Payments ----

func (s *Service) ListPayments(ctx context.Context, employeeID string) ([]store.SalaryPayment, error) {
	return s.store.ListSalaryPayments(ctx, employeeID)
}
