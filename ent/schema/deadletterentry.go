package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
)

// DeadLetterEntry holds the schema definition for the DeadLetterEntry
// entity: the terminal record of a task that exhausted its retry
// budget, kept for operator inspection and manual replay.
type DeadLetterEntry struct {
	ent.Schema
}

// Fields of the DeadLetterEntry.
func (DeadLetterEntry) Fields() []ent.Field {
	return []ent.Field{
		field.String("task_id").
			StorageKey("task_id").
			Unique().
			Immutable(),
		field.JSON("original_payload", map[string]interface{}{}),
		field.Text("last_error"),
		field.Time("moved_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the DeadLetterEntry.
func (DeadLetterEntry) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("task", Task.Type).
			Ref("dead_letter_entry").
			Unique().
			Required().
			Immutable(),
	}
}
