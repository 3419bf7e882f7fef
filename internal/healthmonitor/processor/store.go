package processor

import (
	"context"

	"github.com/llm-infra/llm-health-monitor/internal/healthmonitor/domain"
)

// Store is the persistence seam the Result Processor depends on. It is
// satisfied by PostgresStore in production and by an in-memory fake in
// tests, matching the teacher's practice of keeping the database behind a
// narrow interface at the point of use.
type Store interface {
	// GetTrackingRow returns the current row for an identity, or
	// (nil, nil) if the identity has never been tracked before.
	GetTrackingRow(ctx context.Context, id domain.Identity) (*domain.TrackingRow, error)

	// UpsertTrackingRow inserts or replaces the full row for an identity.
	UpsertTrackingRow(ctx context.Context, row domain.TrackingRow) error

	// AppendHistory appends one history record.
	AppendHistory(ctx context.Context, record domain.HistoryRecord) error

	// GetActiveIncident returns the open incident for an identity, or
	// (nil, nil) if none is active.
	GetActiveIncident(ctx context.Context, id domain.Identity) (*domain.Incident, error)

	// OpenIncident creates a new active incident.
	OpenIncident(ctx context.Context, incident domain.Incident) error

	// UpdateIncident updates an existing incident's mutable fields
	// (error_count, error_message, severity).
	UpdateIncident(ctx context.Context, incident domain.Incident) error

	// ResolveActiveIncidents closes every active incident for an
	// identity with the given resolution notes.
	ResolveActiveIncidents(ctx context.Context, id domain.Identity, notes string) error
}
