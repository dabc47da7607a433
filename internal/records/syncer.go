package records

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/requestdesk/requestdesk/internal/request"
)

// Fetcher retrieves intake records from the external endpoint.
type Fetcher interface {
	Fetch(ctx context.Context) ([]Record, error)
}

// Syncer mirrors intake records into the local request store. A failed sync
// leaves existing local data untouched.
type Syncer struct {
	fetcher Fetcher
	repo    request.Repository
	logger  zerolog.Logger
	metrics *SyncMetrics
}

// NewSyncer creates a new records syncer.
func NewSyncer(fetcher Fetcher, repo request.Repository, logger zerolog.Logger) *Syncer {
	metrics, err := NewSyncMetrics()
	if err != nil {
		logger.Warn().Err(err).Msg("sync metrics unavailable")
	}
	return &Syncer{
		fetcher: fetcher,
		repo:    repo,
		logger:  logger,
		metrics: metrics,
	}
}

// Sync fetches all intake records and upserts them locally. It returns the
// number of records applied.
func (s *Syncer) Sync(ctx context.Context) (applied int, err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordSync(time.Since(start), applied, err)
	}()

	fetched, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching intake records: %w", err)
	}

	for _, rec := range fetched {
		req, err := toRequest(rec)
		if err != nil {
			s.logger.Warn().Err(err).Int64("record_id", rec.ID).Msg("skipping intake record")
			continue
		}
		if err := s.repo.Upsert(ctx, req); err != nil {
			return applied, fmt.Errorf("upserting record %d: %w", rec.ID, err)
		}
		applied++
	}

	return applied, nil
}

// Run syncs on a fixed interval until ctx is cancelled. Failures are logged
// and the next tick tries again.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		applied, err := s.Sync(ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("records sync failed")
		} else {
			s.logger.Info().Int("applied", applied).Msg("records sync complete")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// toRequest converts an intake record to a local request.
func toRequest(rec Record) (*request.Request, error) {
	if rec.ID <= 0 {
		return nil, fmt.Errorf("record has no ID")
	}

	status := request.Status(rec.Status)
	if !status.Valid() {
		status = request.StatusPending
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	return &request.Request{
		ID:              rec.ID,
		Status:          status,
		CustomerCode:    rec.CustomerCode,
		CustomerRoles:   rec.CustomerRole,
		CompanyName:     rec.CompanyName,
		Address:         rec.Address,
		City:            rec.City,
		State:           rec.State,
		Phone:           rec.Phone,
		Email:           rec.Email,
		TaxID:           rec.TaxID,
		ContactName:     rec.ContactName,
		ContactPosition: rec.ContactPosition,
		ContactPhone:    rec.ContactPhone,
		ContactEmail:    rec.ContactEmail,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
		Active:          true,
	}, nil
}
