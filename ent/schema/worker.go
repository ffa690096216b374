package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Worker holds the schema definition for the Worker entity: one row per
// registered fleet member, heartbeated while it claims and executes
// tasks.
type Worker struct {
	ent.Schema
}

// Fields of the Worker.
func (Worker) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("id").
			Unique().
			Immutable(),
		field.String("hostname"),
		field.String("worker_group").
			Default(""),
		field.JSON("activity_types", []string{}),
		field.Int("max_concurrency"),
		field.Int("current_load").
			Default(0),
		field.Bool("accepting_tasks").
			Default(true),
		field.String("backpressure_reason").
			Optional().
			Default(""),
		field.Enum("status").
			Values("active", "draining", "stopped", "stale").
			Default("active"),
		field.Time("last_heartbeat_at").
			Default(time.Now),
	}
}

// Edges of the Worker.
func (Worker) Edges() []ent.Edge {
	return nil
}

// Indexes of the Worker.
func (Worker) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status"),
		index.Fields("last_heartbeat_at"),
	}
}
