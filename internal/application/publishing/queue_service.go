package publishing

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/postpilot/backend/internal/domain/queue"
	"github.com/postpilot/backend/internal/domain/quota"
	"github.com/postpilot/backend/internal/domain/shared"
)

// QueueService answers entry lookups and handles cancellation
type QueueService struct {
	entries queue.EntryRepository
	ledgers quota.LedgerRepository
	logger  *zap.Logger
}

// NewQueueService creates a new QueueService
func NewQueueService(entries queue.EntryRepository, ledgers quota.LedgerRepository, logger *zap.Logger) *QueueService {
	return &QueueService{
		entries: entries,
		ledgers: ledgers,
		logger:  logger,
	}
}

// GetEntry returns one entry's current state. Entries are scoped to their
// owner: another user's entry reads as not found.
func (s *QueueService) GetEntry(ctx context.Context, userID, entryID uuid.UUID) (*EntryDTO, error) {
	entry, err := s.entries.FindByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.UserID != userID {
		return nil, shared.ErrNotFound
	}
	return ToEntryDTO(entry), nil
}

// ListEntries returns a user's entries, newest first
func (s *QueueService) ListEntries(ctx context.Context, userID uuid.UUID, limit int) ([]*EntryDTO, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	entries, err := s.entries.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	dtos := make([]*EntryDTO, len(entries))
	for i, entry := range entries {
		dtos[i] = ToEntryDTO(entry)
	}
	return dtos, nil
}

// CancelEntry withdraws an entry. A queued entry hands its quota slot back
// here; an in-flight entry is marked cancelled and the dispatcher worker
// settles the slot when it observes the flag. Settled entries cannot be
// cancelled. Only the entry's owner may cancel it.
func (s *QueueService) CancelEntry(ctx context.Context, userID, entryID uuid.UUID) (*EntryDTO, error) {
	entry, err := s.entries.FindByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.UserID != userID {
		return nil, shared.ErrNotFound
	}

	wasQueued := entry.Status == queue.StatusQueued
	heldReservation := entry.ReservationID
	if err := entry.Cancel(); err != nil {
		return nil, err
	}
	if err := s.entries.Save(ctx, entry); err != nil {
		return nil, err
	}

	if wasQueued && heldReservation != nil {
		if err := s.ledgers.Release(ctx, *heldReservation); err != nil {
			s.logger.Error("failed to release reservation on cancel",
				zap.String("entry_id", entry.ID.String()),
				zap.String("reservation_id", heldReservation.String()),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("entry cancelled",
		zap.String("entry_id", entry.ID.String()),
		zap.String("platform", entry.Platform.String()),
	)
	return ToEntryDTO(entry), nil
}

// Stats returns per-lane entry counts
func (s *QueueService) Stats(ctx context.Context) (*QueueStatsDTO, error) {
	lanes, err := s.entries.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &QueueStatsDTO{Lanes: lanes}, nil
}
