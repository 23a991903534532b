package repository

// Package repository contains data access layer abstractions.
// Implementations live in subpackages (postgres) inside this directory.

import (
	"context"

	"auditstore/internal/database"
	"auditstore/internal/model"
)

// Validator checks an entity before it is written. A failure must be
// returned unchanged and aborts the write before any statement runs.
type Validator interface {
	Validate(ctx context.Context, m model.Model) error
}

// Recorder is invoked inside the write transaction, after the row has been
// written and before commit. An error aborts the whole write.
type Recorder interface {
	Record(ctx context.Context, tx *database.Tx, m model.Model) error
}

// UserRepository persists users and keeps an identity map keyed by id and email.
type UserRepository interface {
	// GetByID returns the cached user or loads it. forceReload bypasses the
	// cache and repopulates it.
	GetByID(ctx context.Context, id int64, forceReload bool) (*model.User, error)

	// GetByEmail behaves like GetByID keyed on the unique email.
	GetByEmail(ctx context.Context, email string, forceReload bool) (*model.User, error)

	// Save validates, then inserts or updates the user in its own transaction.
	Save(ctx context.Context, u *model.User) (*model.User, error)

	// SaveTx is Save inside the caller's transaction.
	SaveTx(ctx context.Context, tx *database.Tx, u *model.User) (*model.User, error)

	// DeleteByID soft or hard deletes the user and evicts it from the cache.
	DeleteByID(ctx context.Context, id int64, soft bool) (bool, error)

	// List returns users in store order.
	List(ctx context.Context, q Query) ([]*model.User, error)
}

// ForbiddenDomainRepository reads and bulk-loads forbidden e-mail domains.
type ForbiddenDomainRepository interface {
	GetByDomain(ctx context.Context, domain string, forceReload bool) (*model.ForbiddenDomain, error)

	// MassInsert upserts rows keyed on the unique domain column.
	MassInsert(ctx context.Context, rows []map[string]any) error
}

// HistoryRepository stores audit rows.
type HistoryRepository interface {
	Save(ctx context.Context, h *model.History) (*model.History, error)
	SaveTx(ctx context.Context, tx *database.Tx, h *model.History) (*model.History, error)

	// GetLastByEntity returns the newest history row recorded for m.
	GetLastByEntity(ctx context.Context, m model.Model, forceReload bool) (*model.History, error)

	// ListByEntity returns the history of one entity, newest first.
	ListByEntity(ctx context.Context, kind model.Kind, id int64, page PageQuery) ([]*model.History, error)
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}
