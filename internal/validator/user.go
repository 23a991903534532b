package validator

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"auditstore/internal/apperr"
	"auditstore/internal/model"
	"auditstore/internal/record"
	"auditstore/internal/repository"
)

var namePattern = regexp.MustCompile(`^[a-z0-9]{8,64}$`)

// nameForbiddenWords may not appear anywhere in a user name.
var nameForbiddenWords = []string{"admin", "administrator", "moder", "moderator"}

// DomainLookup finds a forbidden e-mail domain. A miss is reported as
// apperr.ErrNoSuchEntity.
type DomainLookup interface {
	GetByDomain(ctx context.Context, domain string, forceReload bool) (*model.ForbiddenDomain, error)
}

var _ DomainLookup = (repository.ForbiddenDomainRepository)(nil)

// UserValidator checks a user before it is written and reports the first
// rule it violates.
type UserValidator struct {
	domains DomainLookup
}

func NewUserValidator(domains DomainLookup) *UserValidator {
	return &UserValidator{domains: domains}
}

var _ repository.Validator = (*UserValidator)(nil)

func (v *UserValidator) Validate(ctx context.Context, m model.Model) error {
	u, ok := m.(*model.User)
	if !ok {
		return apperr.IncorrectData("user validator got %s", m.Kind())
	}
	if err := deletedDate(u); err != nil {
		return err
	}
	if err := name(u.Name()); err != nil {
		return err
	}
	return v.email(ctx, u.Email())
}

func deletedDate(u *model.User) error {
	deleted := u.Deleted()
	created, ok := u.Created()
	if deleted == nil || !ok {
		return nil
	}
	if deleted.Before(created) {
		return apperr.IncorrectData("Deleted date (%s) can not be less than Created (%s)",
			deleted.UTC().Format(record.DateTimeLayout), created.UTC().Format(record.DateTimeLayout))
	}
	return nil
}

func name(n string) error {
	if !namePattern.MatchString(n) {
		return apperr.IncorrectData("Username must be 8-64 characters long and contain only letters (a-z) and digits (0-9)")
	}
	for _, w := range nameForbiddenWords {
		if strings.Contains(n, w) {
			return apperr.IncorrectData("Username can not contain word %s", w)
		}
	}
	return nil
}

func (v *UserValidator) email(ctx context.Context, email string) error {
	// a bare address only; display names and angle brackets are rejected
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return apperr.IncorrectData("Email format is invalid")
	}

	_, domain, _ := strings.Cut(email, "@")
	if domain == "" || v.domains == nil {
		return nil
	}
	_, err = v.domains.GetByDomain(ctx, strings.ToLower(domain), false)
	switch {
	case err == nil:
		return apperr.IncorrectData("Email domain is not allowed")
	case errors.Is(err, apperr.ErrNoSuchEntity):
		return nil
	default:
		return fmt.Errorf("check email domain: %w", err)
	}
}
