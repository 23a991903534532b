package model

import "fmt"

// Kind is the closed set of entity types the store knows. Its string form is
// the discriminator persisted in history.entity_type.
type Kind string

const (
	KindUser            Kind = "user"
	KindForbiddenDomain Kind = "forbidden_email_domain"
	KindHistory         Kind = "history"
)

var kinds = map[Kind]struct{}{
	KindUser:            {},
	KindForbiddenDomain: {},
	KindHistory:         {},
}

func (k Kind) String() string { return string(k) }

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// ParseKind converts a stored discriminator back into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown entity kind %q", s)
	}
	return k, nil
}
