package model

import "time"

// ForbiddenDomain field names.
const (
	ForbiddenDomainDomain  = "domain"
	ForbiddenDomainReason  = "reason"
	ForbiddenDomainUpdated = "updated"
)

var forbiddenDomainSchema = Schema{Kind: KindForbiddenDomain, Table: "forbidden_email_domains", PrimaryKey: FieldID}

// ForbiddenDomain is an e-mail domain users may not register with.
type ForbiddenDomain struct {
	Entity
}

func NewForbiddenDomain(data map[string]any) *ForbiddenDomain {
	return &ForbiddenDomain{Entity: NewEntity(forbiddenDomainSchema, data)}
}

func (d *ForbiddenDomain) Domain() string     { return d.data.String(ForbiddenDomainDomain) }
func (d *ForbiddenDomain) SetDomain(s string) { d.data.Set(ForbiddenDomainDomain, s) }
func (d *ForbiddenDomain) Reason() string     { return d.data.String(ForbiddenDomainReason) }
func (d *ForbiddenDomain) SetReason(s string) { d.data.Set(ForbiddenDomainReason, s) }

// Updated is maintained by the store on every write.
func (d *ForbiddenDomain) Updated() (time.Time, bool) {
	return d.data.Time(ForbiddenDomainUpdated)
}
