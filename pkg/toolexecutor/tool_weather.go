package toolexecutor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/turnengine/core/pkg/turn"
)

const weatherSchemaDoc = `{
	"type": "object",
	"properties": {
		"location": {"type": "string", "minLength": 1}
	},
	"required": ["location"],
	"additionalProperties": false
}`

// WeatherTool is a reference "weather" lookup capability alongside
// AddTool: a synthetic, deterministic stand-in for a real external
// weather API so integration tests never make a network call. Results
// are seeded per-location and otherwise constant.
type WeatherTool struct {
	validator *argumentValidator

	mu      sync.Mutex
	seeded  map[string]weatherResult
	fixture func(location string) weatherResult
}

// NewWeatherTool builds a WeatherTool. fixture, if non-nil, overrides the
// built-in deterministic fixture generator — a caller can use this to pin exact
// results without depending on the default synthetic formula.
func NewWeatherTool(fixture func(location string) weatherResult) (*WeatherTool, error) {
	v, err := newArgumentValidator("weather", json.RawMessage(weatherSchemaDoc))
	if err != nil {
		return nil, err
	}
	if fixture == nil {
		fixture = syntheticWeather
	}
	return &WeatherTool{validator: v, seeded: make(map[string]weatherResult), fixture: fixture}, nil
}

func (t *WeatherTool) Describe() turn.ToolSchema {
	return turn.ToolSchema{
		Name:        "weather",
		Description: "Looks up the current synthetic weather conditions for a named location.",
		Parameters:  json.RawMessage(weatherSchemaDoc),
	}
}

type weatherArguments struct {
	Location string `json:"location"`
}

type weatherResult struct {
	Location      string  `json:"location"`
	TempCelsius   float64 `json:"temp_celsius"`
	Conditions    string  `json:"conditions"`
	WindKmh       float64 `json:"wind_kmh"`
	HumidityRatio float64 `json:"humidity_ratio"`
}

func (t *WeatherTool) Execute(_ context.Context, _ turn.SessionContext, arguments json.RawMessage) (json.RawMessage, error) {
	if err := t.validator.Validate(arguments); err != nil {
		return nil, err
	}
	var args weatherArguments
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, &turn.ToolExecutorError{Kind: turn.ToolErrInvalidArguments, Message: "arguments do not match weather's shape", Cause: err}
	}

	key := strings.ToLower(strings.TrimSpace(args.Location))
	t.mu.Lock()
	cached, ok := t.seeded[key]
	if !ok {
		cached = t.fixture(args.Location)
		t.seeded[key] = cached
	}
	t.mu.Unlock()

	result, err := json.Marshal(cached)
	if err != nil {
		return nil, &turn.ToolExecutorError{Kind: turn.ToolErrPermanent, Message: fmt.Sprintf("marshaling result: %v", err), Cause: err}
	}
	return result, nil
}

// syntheticWeather derives a deterministic-but-location-varying reading
// from the location string's bytes, so distinct locations get distinct
// (repeatable) results without any external call or wall-clock input.
func syntheticWeather(location string) weatherResult {
	var sum int
	for _, b := range []byte(location) {
		sum += int(b)
	}
	conditionsList := []string{"clear", "cloudy", "rain", "snow", "windy"}
	return weatherResult{
		Location:      location,
		TempCelsius:   float64(sum%40) - 5,
		Conditions:    conditionsList[sum%len(conditionsList)],
		WindKmh:       float64(sum % 60),
		HumidityRatio: float64(sum%100) / 100,
	}
}
