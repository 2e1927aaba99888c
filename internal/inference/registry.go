package inference

import (
	"fmt"

	"github.com/cgale/vigil/internal/config"
)

// NewClient constructs the configured provider client. The client is built
// once at bootstrap and injected into the monitoring loop; there is no
// process-wide shared instance.
func NewClient(cfg config.InferenceSettings) (Client, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIClient(cfg)
	case "anthropic":
		return NewAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unknown inference provider: %q", cfg.Provider)
	}
}
