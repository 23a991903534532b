package model

import "time"

// User field names.
const (
	UserName    = "name"
	UserEmail   = "email"
	UserDeleted = FieldDeleted
	UserNotes   = "notes"
)

var userSchema = Schema{Kind: KindUser, Table: "users", PrimaryKey: FieldID, Historifiable: true}

// User is a soft-deletable, historified account.
type User struct {
	Entity
}

// NewUser builds a User from optional initial fields.
func NewUser(data map[string]any) *User {
	return &User{Entity: NewEntity(userSchema, data)}
}

func (u *User) Name() string        { return u.data.String(UserName) }
func (u *User) SetName(name string) { u.data.Set(UserName, name) }
func (u *User) Email() string       { return u.data.String(UserEmail) }
func (u *User) SetEmail(e string)   { u.data.Set(UserEmail, e) }
func (u *User) Notes() *string      { return u.data.StringPtr(UserNotes) }
func (u *User) SetNotes(n *string)  { u.data.Set(UserNotes, n) }

// Deleted returns the soft-delete timestamp, nil while the user is active.
func (u *User) Deleted() *time.Time {
	t, ok := u.data.Time(UserDeleted)
	if !ok {
		return nil
	}
	return &t
}

func (u *User) SetDeleted(t *time.Time) {
	if t == nil {
		u.data.Set(UserDeleted, nil)
		return
	}
	u.data.Set(UserDeleted, *t)
}

// IsDeleted reports whether the user has been soft-deleted.
func (u *User) IsDeleted() bool {
	return u.Deleted() != nil
}
