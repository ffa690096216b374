// Package modeldriver provides the concrete turn.ModelDriver
// implementations InvokeModel calls through: one adapter per
// config.ModelProviderType, each wrapping the provider's official Go SDK
// the way features/model/anthropic and features/model/openai wrap theirs
// for the planner runtime this engine is modeled on.
package modeldriver

import (
	"fmt"
	"os"
	"sync"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openaisdk "github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"

	"github.com/turnengine/core/pkg/config"
	"github.com/turnengine/core/pkg/turn"
)

// Factory implements turn.DriverFactory, resolving a config.ModelProviderConfig
// to a live ModelDriver. Drivers are constructed lazily and cached by
// provider config pointer, since a registry's providers outlive any one
// turn and the underlying SDK clients hold their own connection pools.
type Factory struct {
	mu      sync.Mutex
	drivers map[*config.ModelProviderConfig]turn.ModelDriver
}

// NewFactory builds an empty Factory.
func NewFactory() *Factory {
	return &Factory{drivers: make(map[*config.ModelProviderConfig]turn.ModelDriver)}
}

// Driver returns the cached driver for provider, constructing one on first
// use. The API key is read from the environment variable provider.APIKeyEnv
// names; it is never logged or stored on the returned driver beyond what
// the underlying SDK client itself retains.
func (f *Factory) Driver(provider *config.ModelProviderConfig) (turn.ModelDriver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if d, ok := f.drivers[provider]; ok {
		return d, nil
	}

	apiKey := os.Getenv(provider.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("modeldriver: environment variable %s is empty for provider model %s", provider.APIKeyEnv, provider.Model)
	}

	var d turn.ModelDriver
	switch provider.Type {
	case config.ModelProviderAnthropic:
		opts := []option.RequestOption{option.WithAPIKey(apiKey)}
		if provider.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(provider.BaseURL))
		}
		client := anthropicsdk.NewClient(opts...)
		d = NewAnthropicDriver(&client.Messages, provider.Model)
	case config.ModelProviderOpenAI:
		opts := []openaioption.RequestOption{openaioption.WithAPIKey(apiKey)}
		if provider.BaseURL != "" {
			opts = append(opts, openaioption.WithBaseURL(provider.BaseURL))
		}
		client := openaisdk.NewClient(opts...)
		d = NewOpenAIDriver(&client.Chat.Completions, provider.Model)
	default:
		return nil, fmt.Errorf("modeldriver: unsupported provider type %q", provider.Type)
	}

	f.drivers[provider] = d
	return d, nil
}
