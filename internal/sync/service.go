// Package sync drives one polling pass over every registered integration and
// feeds the normalized spans into the ledger.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"paysync/api/internal/ledger"
	"paysync/api/internal/runlock"
	"paysync/api/internal/source"
	"paysync/api/internal/store"
)

// ErrRunInProgress means another sync run holds the lock; the caller skips
// this tick rather than queueing behind it.
var ErrRunInProgress = errors.New("sync run already in progress")

// Summary is the outcome of one run. Per-source failures land here; they
// never abort the run.
type Summary struct {
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Succeeded  []string  `json:"succeeded"`
	Failed     []Failure `json:"failed"`
	Spans      int       `json:"spans"`
	Dropped    int       `json:"dropped"`
}

type Failure struct {
	IntegrationID string `json:"integrationId"`
	Reason        string `json:"reason"`
}

type syncStore interface {
	ListIntegrations(ctx context.Context) ([]store.Integration, error)
	GetIntegration(ctx context.Context, integrationID string) (store.Integration, error)
	ResolveEmployeeByEmail(ctx context.Context, email string) (string, error)
}

type reconciler interface {
	Reconcile(ctx context.Context, employeeID, integrationID string, start, end time.Time) error
}

type adapterRegistry interface {
	ForKind(kind string) (source.Adapter, error)
}

type Service struct {
	store      syncStore
	adapters   adapterRegistry
	reconciler reconciler
	guard      runlock.Guard
}

func New(s syncStore, adapters adapterRegistry, rec reconciler, guard runlock.Guard) *Service {
	return &Service{store: s, adapters: adapters, reconciler: rec, guard: guard}
}

// RunAll polls every registered integration in listing order, strictly
// sequentially. One source failing is recorded and the loop moves on; only a
// failed integration listing (or a held run lock) is fatal for the run.
func (s *Service) RunAll(ctx context.Context) (Summary, error) {
	acquired, err := s.guard.TryAcquire(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("run guard: %w", err)
	}
	if !acquired {
		return Summary{}, ErrRunInProgress
	}
	defer func() {
		if err := s.guard.Release(context.WithoutCancel(ctx)); err != nil {
			log.Printf("sync: release run lock: %v", err)
		}
	}()

	summary := Summary{StartedAt: time.Now().UTC(), Succeeded: []string{}, Failed: []Failure{}}

	integrations, err := s.store.ListIntegrations(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list integrations: %w", err)
	}

	for _, integration := range integrations {
		reconciled, dropped, err := s.syncOne(ctx, integration)
		summary.Spans += reconciled
		summary.Dropped += dropped
		if err != nil {
			log.Printf("sync: integration %s (%s) failed: %v", integration.ID, integration.Name, err)
			summary.Failed = append(summary.Failed, Failure{IntegrationID: integration.ID, Reason: err.Error()})
			continue
		}
		summary.Succeeded = append(summary.Succeeded, integration.ID)
	}

	summary.FinishedAt = time.Now().UTC()
	if err := s.guard.SaveLastRun(ctx, summary); err != nil {
		log.Printf("sync: save last run summary: %v", err)
	}
	return summary, nil
}

// RefreshOne resyncs a single integration outside the full loop (the manual
// per-integration refresh action). It shares the run lock with RunAll.
func (s *Service) RefreshOne(ctx context.Context, integrationID string) error {
	acquired, err := s.guard.TryAcquire(ctx)
	if err != nil {
		return fmt.Errorf("run guard: %w", err)
	}
	if !acquired {
		return ErrRunInProgress
	}
	defer func() {
		if err := s.guard.Release(context.WithoutCancel(ctx)); err != nil {
			log.Printf("sync: release run lock: %v", err)
		}
	}()

	integration, err := s.store.GetIntegration(ctx, integrationID)
	if err != nil {
		return fmt.Errorf("load integration: %w", err)
	}
	if _, _, err := s.syncOne(ctx, integration); err != nil {
		return err
	}
	return nil
}

// LastRun returns the summary of the most recent completed run, if any.
func (s *Service) LastRun(ctx context.Context) (Summary, bool, error) {
	var summary Summary
	ok, err := s.guard.LastRun(ctx, &summary)
	return summary, ok, err
}

// syncOne fetches and reconciles one integration. Unresolved emails and
// invalid intervals drop single spans with a warning; adapter and store
// failures fail the whole source.
func (s *Service) syncOne(ctx context.Context, integration store.Integration) (reconciled, dropped int, err error) {
	adapter, err := s.adapters.ForKind(integration.Kind)
	if err != nil {
		return 0, 0, err
	}

	spans, err := adapter.Normalize(ctx, integration.Credential, integration.Config)
	if err != nil {
		return 0, 0, err
	}

	for _, span := range spans {
		employeeID, err := s.store.ResolveEmployeeByEmail(ctx, span.NativeID)
		if err != nil {
			return reconciled, dropped, fmt.Errorf("resolve %q: %w", span.NativeID, err)
		}
		if employeeID == "" {
			log.Printf("sync: integration %s: no employee for %q, dropping span %s..%s",
				integration.ID, span.NativeID, span.Start.Format(time.RFC3339), span.End.Format(time.RFC3339))
			dropped++
			continue
		}

		if err := s.reconciler.Reconcile(ctx, employeeID, integration.ID, span.Start, span.End); err != nil {
			if errors.Is(err, ledger.ErrInvalidInterval) {
				log.Printf("sync: integration %s: dropping span for %q: %v", integration.ID, span.NativeID, err)
				dropped++
				continue
			}
			return reconciled, dropped, err
		}
		reconciled++
	}

	log.Printf("sync: integration %s (%s): %d spans reconciled, %d dropped",
		integration.ID, integration.Name, reconciled, dropped)
	return reconciled, dropped, nil
}
