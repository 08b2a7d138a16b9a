package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tmarchetti/goalbook/internal/domain"
	"github.com/tmarchetti/goalbook/internal/store"
)

// IdemKey identifies one logical client request: the Idempotency-Key header
// value plus a hash of the raw request body. A zero IdemKey disables replay
// protection for the call.
type IdemKey struct {
	Key         string
	RequestHash string
}

func (k IdemKey) empty() bool {
	return k.Key == ""
}

// beginIdempotent resolves the key at the start of an atomic scope. It
// returns a completed record to replay, reserves the key and returns nil
// for a fresh request, or fails with ErrIdempotencyMismatch or
// ErrIdempotencyConflict.
func beginIdempotent(ctx context.Context, uow store.UnitOfWork, k IdemKey) (*domain.IdempotencyRecord, error) {
	rec, err := uow.GetIdempotencyRecord(ctx, k.Key)
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup failed: %w", err)
	}
	if rec != nil {
		if rec.RequestHash != k.RequestHash {
			return nil, ErrIdempotencyMismatch
		}
		if rec.Status != domain.IdempotencyCompleted {
			return nil, ErrIdempotencyConflict
		}
		return rec, nil
	}

	if err := uow.ReserveIdempotencyKey(ctx, k.Key, k.RequestHash); err != nil {
		if errors.Is(err, store.ErrIdempotencyKeyReserved) {
			return nil, ErrIdempotencyConflict
		}
		return nil, fmt.Errorf("idempotency reservation failed: %w", err)
	}
	return nil, nil
}

// finishIdempotent stores the response for future replays. It runs inside
// the same scope as the mutation, so the reservation completes exactly when
// the mutation commits.
func finishIdempotent(ctx context.Context, uow store.UnitOfWork, k IdemKey, status int, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("idempotency response marshal failed: %w", err)
	}
	return uow.CompleteIdempotencyKey(ctx, k.Key, status, body)
}
