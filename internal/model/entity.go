package model

import (
	"time"

	"auditstore/internal/apperr"
	"auditstore/internal/record"
)

// Common field names.
const (
	FieldID      = "id"
	FieldCreated = "created"
	FieldDeleted = "deleted"
)

// SoftDeletable entities are deleted by stamping FieldDeleted.
type SoftDeletable interface {
	Deleted() *time.Time
	IsDeleted() bool
}

// Schema describes how an entity type maps onto its table.
type Schema struct {
	Kind          Kind
	Table         string
	PrimaryKey    string
	Historifiable bool
}

// Model is implemented by every persisted entity.
type Model interface {
	Kind() Kind
	TableName() string
	PrimaryKey() string
	Historifiable() bool

	ID() (int64, bool)
	Created() (time.Time, bool)
	Get(name string) (any, bool)
	Set(name string, value any) error
	ToMap() map[string]any
	SetData(data map[string]any)

	OrigData() map[string]any
	SetOrigData(data map[string]any)
	IsNew() bool
	SetIsNew(isNew bool)
}

// Entity is the storage shared by every concrete model: the field record,
// the snapshot taken at load time and the "just inserted" flag.
type Entity struct {
	schema   Schema
	data     *record.Record
	origData map[string]any
	isNew    bool
}

// NewEntity builds an Entity. data is stored without taking an original
// snapshot; only SetData records one.
func NewEntity(s Schema, data map[string]any) Entity {
	if s.PrimaryKey == "" {
		s.PrimaryKey = FieldID
	}
	return Entity{schema: s, data: record.New(data), origData: map[string]any{}}
}

func (e *Entity) Kind() Kind          { return e.schema.Kind }
func (e *Entity) TableName() string   { return e.schema.Table }
func (e *Entity) PrimaryKey() string  { return e.schema.PrimaryKey }
func (e *Entity) Historifiable() bool { return e.schema.Historifiable }

// ID returns the primary key; false until the entity has been persisted or loaded.
func (e *Entity) ID() (int64, bool) {
	id, ok := e.data.Int64(e.schema.PrimaryKey)
	if !ok || id == 0 {
		return 0, false
	}
	return id, true
}

// Created returns the store-assigned creation timestamp.
func (e *Entity) Created() (time.Time, bool) {
	return e.data.Time(FieldCreated)
}

// SetCreated overrides the creation timestamp.
func (e *Entity) SetCreated(t time.Time) {
	e.data.Set(FieldCreated, t)
}

func (e *Entity) Get(name string) (any, bool) {
	return e.data.Get(name)
}

// Set stores one field. The primary key cannot be changed once assigned.
func (e *Entity) Set(name string, value any) error {
	if name == e.schema.PrimaryKey {
		if _, ok := e.ID(); ok {
			return apperr.IncorrectData("%s of a persisted %s is immutable", name, e.schema.Kind)
		}
	}
	e.data.Set(name, value)
	return nil
}

// Unset removes a field.
func (e *Entity) Unset(name string) {
	e.data.Unset(name)
}

// Has reports whether name holds a non-nil value.
func (e *Entity) Has(name string) bool {
	return e.data.Has(name)
}

func (e *Entity) ToMap() map[string]any {
	return e.data.ToMap()
}

// SetData replaces every field and snapshots data as the original state.
func (e *Entity) SetData(data map[string]any) {
	e.data.Replace(data)
	e.origData = e.data.ToMap()
}

func (e *Entity) OrigData() map[string]any {
	return record.Clone(e.origData)
}

func (e *Entity) SetOrigData(data map[string]any) {
	e.origData = record.Clone(data)
}

func (e *Entity) IsNew() bool { return e.isNew }

func (e *Entity) SetIsNew(isNew bool) { e.isNew = isNew }

// Record exposes the underlying field store.
func (e *Entity) Record() *record.Record { return e.data }
