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

// DefaultUserListLimit applies when a user list query sets no limit.
const DefaultUserListLimit = 25

// UserPostgres is a PostgreSQL implementation of repository.UserRepository.
// Loaded and saved users are kept in an identity map under both id and email.
type UserPostgres struct {
	base      *Base
	entities  *cache.IdentityMap[*model.User]
	validator repository.Validator
	recorder  repository.Recorder
}

// NewUserPostgres creates a user repository. v runs before every save and
// rec inside every save transaction; either may be nil.
func NewUserPostgres(db *sql.DB, v repository.Validator, rec repository.Recorder, opts ...Option) *UserPostgres {
	r := &UserPostgres{validator: v, recorder: rec}
	r.base = newBase(db, hooks{validate: r.validateFields, beforeCommit: r.saveCommitBefore}, opts...)
	r.entities = cache.NewIdentityMap[*model.User](r.base.cacheSize)
	return r
}

var _ repository.UserRepository = (*UserPostgres)(nil)

func (r *UserPostgres) GetByID(ctx context.Context, id int64, forceReload bool) (*model.User, error) {
	return r.getBy(ctx, model.FieldID, id, forceReload)
}

func (r *UserPostgres) GetByEmail(ctx context.Context, email string, forceReload bool) (*model.User, error) {
	return r.getBy(ctx, model.UserEmail, email, forceReload)
}

func (r *UserPostgres) getBy(ctx context.Context, field string, value any, forceReload bool) (*model.User, error) {
	key := cache.Key(value)
	if forceReload {
		r.base.metrics.CacheLookup(model.KindUser.String(), field, metrics.ResultReload)
	} else {
		if u, ok := r.entities.Get(field, key); ok {
			r.base.metrics.CacheLookup(model.KindUser.String(), field, metrics.ResultHit)
			return u, nil
		}
		r.base.metrics.CacheLookup(model.KindUser.String(), field, metrics.ResultMiss)
	}

	u := model.NewUser(nil)
	if err := r.base.Load(ctx, u, value, field); err != nil {
		return nil, err
	}
	if _, ok := u.ID(); !ok {
		return nil, apperr.NoSuchEntity("there is no user with %s %v", field, value)
	}
	r.entities.Put(field, key, u)
	return u, nil
}

func (r *UserPostgres) Save(ctx context.Context, u *model.User) (*model.User, error) {
	return r.SaveTx(ctx, nil, u)
}

func (r *UserPostgres) SaveTx(ctx context.Context, tx *database.Tx, u *model.User) (*model.User, error) {
	prevEmail, hadEmail := u.OrigData()[model.UserEmail]

	if err := r.base.SaveModel(ctx, tx, u); err != nil {
		return nil, err
	}

	id, _ := u.ID()
	if hadEmail && cache.Key(prevEmail) != cache.Key(u.Email()) {
		r.entities.Remove(model.UserEmail, cache.Key(prevEmail))
	}
	r.entities.Put(model.FieldID, cache.Key(id), u)
	r.entities.Put(model.UserEmail, cache.Key(u.Email()), u)
	return u, nil
}

// DeleteByID evicts the user from both cache keys before deleting. A soft
// deleted user can still be loaded and then carries its deleted timestamp.
func (r *UserPostgres) DeleteByID(ctx context.Context, id int64, soft bool) (bool, error) {
	u, err := r.GetByID(ctx, id, false)
	if err != nil {
		return false, err
	}

	r.entities.Remove(model.FieldID, cache.Key(id))
	r.entities.Remove(model.UserEmail, cache.Key(u.Email()))

	return r.base.DeleteModel(ctx, nil, u, soft)
}

// List reads users without touching the identity map. It defaults to the
// first DefaultUserListLimit users ordered by id.
func (r *UserPostgres) List(ctx context.Context, q repository.Query) ([]*model.User, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultUserListLimit
	}
	if len(q.Order) == 0 {
		q.Order = []repository.Order{{Field: model.FieldID, Direction: repository.ASC}}
	}
	return loadCollection(ctx, r.base, func() *model.User { return model.NewUser(nil) }, model.NewUser(nil).TableName(), q)
}

func (r *UserPostgres) validateFields(ctx context.Context, m model.Model) error {
	if r.validator == nil {
		return nil
	}
	return r.validator.Validate(ctx, m)
}

func (r *UserPostgres) saveCommitBefore(ctx context.Context, tx *database.Tx, m model.Model) error {
	if r.recorder == nil {
		return nil
	}
	return r.recorder.Record(ctx, tx, m)
}
