package postgres

import (
	"context"
	"database/sql"

	"auditstore/internal/apperr"
	"auditstore/internal/cache"
	"auditstore/internal/database"
	"auditstore/internal/metrics"
	"auditstore/internal/model"
	"auditstore/internal/repository"
)

const lastByEntity = "entity_type_entity_id"

// HistoryPostgres is a PostgreSQL implementation of repository.HistoryRepository.
// It caches the newest row per (entity_type, entity_id).
type HistoryPostgres struct {
	base    *Base
	entries *cache.IdentityMap[*model.History]
}

func NewHistoryPostgres(db *sql.DB, opts ...Option) *HistoryPostgres {
	r := &HistoryPostgres{base: newBase(db, hooks{}, opts...)}
	r.entries = cache.NewIdentityMap[*model.History](r.base.cacheSize)
	return r
}

var _ repository.HistoryRepository = (*HistoryPostgres)(nil)

func (r *HistoryPostgres) Save(ctx context.Context, h *model.History) (*model.History, error) {
	return r.SaveTx(ctx, nil, h)
}

func (r *HistoryPostgres) SaveTx(ctx context.Context, tx *database.Tx, h *model.History) (*model.History, error) {
	if err := r.base.SaveModel(ctx, tx, h); err != nil {
		return nil, err
	}
	r.entries.Put(lastByEntity, cache.Key(h.EntityKind().String(), h.EntityID()), h)
	return h, nil
}

func (r *HistoryPostgres) GetLastByEntity(ctx context.Context, m model.Model, forceReload bool) (*model.History, error) {
	id, ok := m.ID()
	if !ok {
		return nil, apperr.IncorrectData("%s has no id and therefore no history", m.Kind())
	}
	key := cache.Key(m.Kind().String(), id)
	kind := model.KindHistory.String()
	if !forceReload {
		if h, ok := r.entries.Get(lastByEntity, key); ok {
			r.base.metrics.CacheLookup(kind, lastByEntity, metrics.ResultHit)
			return h, nil
		}
		r.base.metrics.CacheLookup(kind, lastByEntity, metrics.ResultMiss)
	} else {
		r.base.metrics.CacheLookup(kind, lastByEntity, metrics.ResultReload)
	}

	h := model.NewHistory(nil)
	err := r.base.Load(ctx, h,
		[]any{m.Kind().String(), id},
		[]string{model.HistoryEntityType, model.HistoryEntityID},
	)
	if err != nil {
		return nil, err
	}
	if _, ok := h.ID(); !ok {
		return nil, apperr.NoSuchEntity("there is no history for %s %d", m.Kind(), id)
	}
	r.entries.Put(lastByEntity, key, h)
	return h, nil
}

func (r *HistoryPostgres) ListByEntity(ctx context.Context, kind model.Kind, id int64, page repository.PageQuery) ([]*model.History, error) {
	q := repository.Query{
		Where: []repository.Condition{
			repository.Where(model.HistoryEntityType, "=", kind.String()),
			repository.Where(model.HistoryEntityID, "=", id),
		},
		Order:  []repository.Order{{Field: model.FieldID, Direction: repository.DESC}},
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	return loadCollection(ctx, r.base, func() *model.History { return model.NewHistory(nil) }, model.NewHistory(nil).TableName(), q)
}
