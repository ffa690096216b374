package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Task holds the schema definition for the Task entity: one row per
// unit of work on the lease-based durable queue.
type Task struct {
	ent.Schema
}

// Fields of the Task.
func (Task) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("id").
			Unique().
			Immutable(),
		field.String("session_id").
			Optional().
			Nillable(),
		field.Enum("type").
			Values("StartTurn", "ContinueTurn", "ExecuteTool", "CompactEvents"),
		field.JSON("payload", map[string]interface{}{}).
			Optional(),
		field.Enum("state").
			Values("pending", "claimed", "succeeded", "failed", "dead_letter").
			Default("pending"),
		field.Int("attempt").
			Default(0),
		field.Int("max_attempts"),
		field.Int("priority").
			Default(0),
		field.Time("scheduled_for").
			Default(time.Now),
		field.String("lease_owner").
			Default(""),
		field.Time("lease_expires_at").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("finished_at").
			Optional().
			Nillable(),
		field.Text("last_error").
			Default(""),
	}
}

// Edges of the Task.
func (Task) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("session", Session.Type).
			Ref("tasks").
			Unique(),
		edge.To("dead_letter_entry", DeadLetterEntry.Type).
			Unique().
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Task.
func (Task) Indexes() []ent.Index {
	return []ent.Index{
		// Claim scan: WHERE state = 'pending' AND scheduled_for <= now()
		// ORDER BY priority DESC, scheduled_for ASC FOR UPDATE SKIP LOCKED.
		index.Fields("state", "scheduled_for", "priority").
			Annotations(entsql.IndexWhere("state = 'pending'")),
		// Reclaim sweep scan.
		index.Fields("lease_expires_at").
			Annotations(entsql.IndexWhere("state = 'claimed'")),
		// At most one in-flight turn-driver task per session.
		index.Fields("session_id").
			Unique().
			Annotations(entsql.IndexWhere("type IN ('StartTurn', 'ContinueTurn') AND state IN ('pending', 'claimed')")),
		index.Fields("session_id"),
	}
}
