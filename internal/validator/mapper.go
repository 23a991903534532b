// Package validator holds the per-entity rule sets checked before a write.
package validator

import (
	"context"

	"auditstore/internal/apperr"
	"auditstore/internal/model"
	"auditstore/internal/repository"
)

// Mapper picks the validator registered for an entity's kind.
type Mapper struct {
	byKind map[model.Kind]repository.Validator
}

// NewMapper returns a Mapper with the default rule sets: users are checked
// by a UserValidator backed by domains.
func NewMapper(domains DomainLookup) *Mapper {
	return NewMapperWith(map[model.Kind]repository.Validator{
		model.KindUser: NewUserValidator(domains),
	})
}

// NewMapperWith returns a Mapper over an explicit mapping.
func NewMapperWith(byKind map[model.Kind]repository.Validator) *Mapper {
	m := make(map[model.Kind]repository.Validator, len(byKind))
	for k, v := range byKind {
		m[k] = v
	}
	return &Mapper{byKind: m}
}

// For returns the validator for kind.
func (m *Mapper) For(kind model.Kind) (repository.Validator, error) {
	v, ok := m.byKind[kind]
	if !ok {
		return nil, apperr.IncorrectData("unable to get validator for type %s", kind)
	}
	return v, nil
}

// Validate runs the validator registered for e's kind.
func (m *Mapper) Validate(ctx context.Context, e model.Model) error {
	v, err := m.For(e.Kind())
	if err != nil {
		return err
	}
	return v.Validate(ctx, e)
}
