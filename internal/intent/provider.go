package intent

import (
	"context"
	"fmt"
)

// ToolResult is the outcome of one capability provider execution. Execute
// never fails hard: errors are captured here with Success=false.
type ToolResult struct {
	Tool      string                 `json:"tool"`
	Success   bool                   `json:"success"`
	Error     string                 `json:"error,omitempty"`
	Formatted string                 `json:"formatted_response,omitempty"`
	Data      interface{}            `json:"data,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// CapabilityProvider is the contract every capability backend implements.
// CanHandle must be deterministic and side-effect free; Execute performs the
// external call and captures all failures into the returned ToolResult.
type CapabilityProvider interface {
	Name() string
	Description() string
	IntentKeywords() []string
	CanHandle(query string) bool
	Execute(ctx context.Context, query string) ToolResult
	FormatForLLM(result ToolResult) string
	HealthCheck(ctx context.Context) bool
}

// ProviderInfo is the diagnostic view of a registered provider.
type ProviderInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Available   bool     `json:"available"`
	Keywords    []string `json:"keywords"`
}

func failure(tool, format string, args ...interface{}) ToolResult {
	return ToolResult{
		Tool:     tool,
		Success:  false,
		Error:    fmt.Sprintf(format, args...),
		Metadata: map[string]interface{}{"tool": tool},
	}
}
