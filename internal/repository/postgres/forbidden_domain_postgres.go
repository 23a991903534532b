package postgres

import (
	"context"
	"database/sql"

	"auditstore/internal/apperr"
	"auditstore/internal/cache"
	"auditstore/internal/metrics"
	"auditstore/internal/model"
	"auditstore/internal/repository"
)

// ForbiddenDomainPostgres is a PostgreSQL implementation of
// repository.ForbiddenDomainRepository.
type ForbiddenDomainPostgres struct {
	base     *Base
	entities *cache.IdentityMap[*model.ForbiddenDomain]
}

func NewForbiddenDomainPostgres(db *sql.DB, opts ...Option) *ForbiddenDomainPostgres {
	r := &ForbiddenDomainPostgres{base: newBase(db, hooks{}, opts...)}
	r.entities = cache.NewIdentityMap[*model.ForbiddenDomain](r.base.cacheSize)
	return r
}

var _ repository.ForbiddenDomainRepository = (*ForbiddenDomainPostgres)(nil)

func (r *ForbiddenDomainPostgres) GetByDomain(ctx context.Context, domain string, forceReload bool) (*model.ForbiddenDomain, error) {
	kind := model.KindForbiddenDomain.String()
	if !forceReload {
		if d, ok := r.entities.Get(model.ForbiddenDomainDomain, domain); ok {
			r.base.metrics.CacheLookup(kind, model.ForbiddenDomainDomain, metrics.ResultHit)
			return d, nil
		}
		r.base.metrics.CacheLookup(kind, model.ForbiddenDomainDomain, metrics.ResultMiss)
	} else {
		r.base.metrics.CacheLookup(kind, model.ForbiddenDomainDomain, metrics.ResultReload)
	}

	d := model.NewForbiddenDomain(nil)
	if err := r.base.Load(ctx, d, domain, model.ForbiddenDomainDomain); err != nil {
		return nil, err
	}
	if _, ok := d.ID(); !ok {
		return nil, apperr.NoSuchEntity("there is no forbidden domain %s", domain)
	}
	r.entities.Put(model.ForbiddenDomainDomain, domain, d)
	return d, nil
}

// MassInsert upserts rows on the unique domain column. Rows must not repeat
// a domain within one call.
func (r *ForbiddenDomainPostgres) MassInsert(ctx context.Context, rows []map[string]any) error {
	table := model.NewForbiddenDomain(nil).TableName()
	return r.base.InsertBatch(ctx, table, []string{model.ForbiddenDomainDomain}, rows)
}
