package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
)

// CircuitBreaker holds the schema definition for the CircuitBreaker
// entity: one row per external dependency key, tracking its closed/
// open/half-open state and failure window.
type CircuitBreaker struct {
	ent.Schema
}

// Fields of the CircuitBreaker.
func (CircuitBreaker) Fields() []ent.Field {
	return []ent.Field{
		field.String("service_key").
			StorageKey("service_key").
			Unique().
			Immutable(),
		field.Enum("state").
			Values("closed", "open", "half_open").
			Default("closed"),
		field.Int("failure_count").
			Default(0),
		field.Time("window_started_at").
			Default(time.Now),
		field.Time("opened_at").
			Optional().
			Nillable(),
		field.Time("half_open_probe_at").
			Optional().
			Nillable(),
	}
}

// Edges of the CircuitBreaker.
func (CircuitBreaker) Edges() []ent.Edge {
	return nil
}
