package model

import (
	"encoding/json"
	"fmt"
)

// History field names.
const (
	HistoryEntityID    = "entity_id"
	HistoryEntityType  = "entity_type"
	HistoryChangedData = "changed_data"
)

var historySchema = Schema{Kind: KindHistory, Table: "history", PrimaryKey: FieldID}

// History is one audit row: the after-values of the fields a save changed.
// (entity_type, entity_id) is a lookup key only; it owns nothing.
type History struct {
	Entity
}

func NewHistory(data map[string]any) *History {
	return &History{Entity: NewEntity(historySchema, data)}
}

func (h *History) EntityID() int64 {
	id, _ := h.data.Int64(HistoryEntityID)
	return id
}

func (h *History) SetEntityID(id int64) { h.data.Set(HistoryEntityID, id) }

// EntityKind returns the recorded discriminator. An unknown stored value
// yields the empty Kind.
func (h *History) EntityKind() Kind {
	k, err := ParseKind(h.data.String(HistoryEntityType))
	if err != nil {
		return ""
	}
	return k
}

func (h *History) SetEntityKind(k Kind) { h.data.Set(HistoryEntityType, k.String()) }

// ChangedData returns the serialized diff.
func (h *History) ChangedData() string { return h.data.String(HistoryChangedData) }

// SetChangedData serializes changed as JSON. Map keys are emitted in sorted
// order so equal diffs always produce equal text.
func (h *History) SetChangedData(changed map[string]any) error {
	b, err := json.Marshal(changed)
	if err != nil {
		return fmt.Errorf("encode changed data: %w", err)
	}
	h.data.Set(HistoryChangedData, string(b))
	return nil
}

// ChangedFields decodes the serialized diff.
func (h *History) ChangedFields() (map[string]any, error) {
	out := map[string]any{}
	raw := h.ChangedData()
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode changed data: %w", err)
	}
	return out, nil
}
