package turn

import (
	"encoding/json"

	"github.com/turnengine/core/pkg/models"
)

// turnAttemptOrdinal counts how many message.agent events already exist for
// turnOrdinal within events, giving the zero-based attempt index the next
// InvokeModel call would use. It doubles as the turn's iteration counter
// against AgentConfig.MaxIterations.
func turnAttemptOrdinal(events []*models.Event, turnOrdinal int) int {
	count := 0
	for _, e := range events {
		if e.Type != models.EventMessageAgent {
			continue
		}
		var data models.MessageEventData
		if err := json.Unmarshal(e.Data, &data); err != nil {
			continue
		}
		if data.TurnOrdinal == turnOrdinal {
			count++
		}
	}
	return count
}

// hasTurnStarted reports whether a turn.started event already exists for
// turnOrdinal, so Load can skip re-emitting it on replay.
func hasTurnStarted(events []*models.Event, turnOrdinal int) bool {
	for _, e := range events {
		if e.Type != models.EventTurnStarted {
			continue
		}
		var data models.TurnStartedData
		if err := json.Unmarshal(e.Data, &data); err == nil && data.TurnOrdinal == turnOrdinal {
			return true
		}
	}
	return false
}
