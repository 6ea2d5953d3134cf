// Package source holds the adapters that pull worked-time data out of
// external systems and normalize it into canonical time spans. Adapters do
// pure translation: no scheduling, no storage.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	KindGoogleSheets = "google_sheets"
	KindWebsite      = "website"
)

// Adapter failure taxonomy. Every error an adapter returns wraps exactly one
// of these so the orchestrator can record a reason without inspecting the
// source-specific detail.
var (
	ErrUnreachable   = errors.New("source unreachable")
	ErrBadCredential = errors.New("source credential invalid")
	ErrBadPayload    = errors.New("source payload malformed")

	ErrUnknownKind = errors.New("unknown source kind")
)

// TimeSpan is one normalized worked interval, keyed by the source-native
// subject identifier (an email). It is the in-flight contract between an
// adapter and the reconciler; nothing persists it directly.
type TimeSpan struct {
	NativeID string
	Start    time.Time
	End      time.Time
}

// Adapter is the capability set shared by all source kinds.
type Adapter interface {
	// Normalize fetches the source's current data and translates it into
	// time spans. Spans with missing or unparseable fields are skipped,
	// not fatal; transport and credential problems are.
	Normalize(ctx context.Context, credential, config string) ([]TimeSpan, error)

	// Verify performs one cheap fetch, discarding results. Registration
	// flows call it before persisting a new or updated credential.
	Verify(ctx context.Context, credential, config string) error
}

// Registry dispatches source kinds to adapter implementations. Adding a
// kind means adding one adapter and one entry here.
type Registry struct {
	sheets  *SheetsAdapter
	website *WebsiteAdapter
}

func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		sheets:  NewSheetsAdapter(timeout),
		website: NewWebsiteAdapter(timeout),
	}
}

func (r *Registry) ForKind(kind string) (Adapter, error) {
	switch kind {
	case KindGoogleSheets:
		return r.sheets, nil
	case KindWebsite:
		return r.website, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func Kinds() []string {
	return []string{KindGoogleSheets, KindWebsite}
}
