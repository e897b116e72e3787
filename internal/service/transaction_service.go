package service

import (
	"context"

	"marketplace-escrow/internal/core/domain"
	"marketplace-escrow/internal/core/ports"
	"marketplace-escrow/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// TransactionServiceImpl implements ports.TransactionService on top of the
// unified read model. It is purely derived: nothing here mutates the ledger.
type TransactionServiceImpl struct {
	reader ports.TransactionReader
	stats  ports.StatsReader
	log    zerolog.Logger
}

// NewTransactionService creates a new TransactionServiceImpl.
func NewTransactionService(reader ports.TransactionReader, stats ports.StatsReader, log zerolog.Logger) *TransactionServiceImpl {
	return &TransactionServiceImpl{reader: reader, stats: stats, log: log}
}

// List returns the caller's unified transaction page. Non-admin callers are
// always scoped to their own identity; the userId filter is admin-only.
func (s *TransactionServiceImpl) List(ctx context.Context, actor domain.Actor, params ports.TransactionListParams, filterUserID *uuid.UUID) ([]domain.Transaction, int64, error) {
	if filterUserID != nil && !actor.IsAdmin() {
		return nil, 0, apperror.ErrAdminOnly()
	}

	if actor.IsAdmin() {
		if filterUserID != nil {
			params.UserID = *filterUserID
			params.AllUsers = false
		} else {
			params.AllUsers = true
		}
	} else {
		params.UserID = actor.UserID
		params.AllUsers = false
	}

	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = defaultPageSize
	}
	if params.PageSize > maxPageSize {
		params.PageSize = maxPageSize
	}

	items, total, err := s.reader.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.ErrDatabaseError(err)
	}
	return items, total, nil
}

// Stats returns the aggregate ledger counters. Admin only.
func (s *TransactionServiceImpl) Stats(ctx context.Context, actor domain.Actor) (*ports.LedgerStats, error) {
	if !actor.IsAdmin() {
		return nil, apperror.ErrAdminOnly()
	}
	out, err := s.stats.GetLedgerStats(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	return out, nil
}
