package intent

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/hlab/insightchat/config"
	"github.com/hlab/insightchat/internal/telemetry"
)

// Router maintains the provider registry, decides which providers a query
// activates, and runs them concurrently. Merged context preserves provider
// registration order regardless of completion order.
type Router struct {
	providers []CapabilityProvider
	logger    *log.Logger
	telemetry *telemetry.Telemetry
}

func NewRouter(tele *telemetry.Telemetry) *Router {
	return &Router{
		logger:    log.New(log.Writer(), "[ROUTER] ", log.LstdFlags),
		telemetry: tele,
	}
}

// NewRouterFromConfig builds a router with one provider per enabled tool
// section. A tool that is enabled but has no API URL is skipped with a
// warning rather than registered broken.
func NewRouterFromConfig(cfg config.ToolsConfig, timezone string, tele *telemetry.Telemetry) *Router {
	r := NewRouter(tele)

	register := func(name string, tc config.ToolConfig, build func() CapabilityProvider) {
		if !tc.Enabled {
			return
		}
		if strings.TrimSpace(tc.APIURL) == "" {
			r.logger.Printf("%s provider enabled but api_url not configured, skipping", name)
			return
		}
		r.Register(build())
		r.logger.Printf("%s provider registered: %s", name, tc.Normalize().APIURL)
	}

	register("weather", cfg.Weather, func() CapabilityProvider { return NewWeatherProvider(cfg.Weather) })
	register("quotes", cfg.Quotes, func() CapabilityProvider { return NewQuotesProvider(cfg.Quotes) })
	register("calendar", cfg.Calendar, func() CapabilityProvider { return NewCalendarProvider(cfg.Calendar, timezone) })

	r.logger.Printf("router initialized with %d active providers", len(r.providers))
	return r
}

// Register appends a provider. Registration order determines merged-context
// order in Route.
func (r *Router) Register(p CapabilityProvider) {
	r.providers = append(r.providers, p)
}

// Providers returns the registry in registration order.
func (r *Router) Providers() []CapabilityProvider {
	return r.providers
}

// Route executes every provider whose CanHandle accepts the query. Providers
// run concurrently; one provider's failure never aborts the others. The
// merged context concatenates non-empty FormatForLLM outputs in registration
// order, separated by blank lines.
func (r *Router) Route(ctx context.Context, query string) ([]ToolResult, string) {
	var matching []CapabilityProvider
	for _, p := range r.providers {
		if p.CanHandle(query) {
			matching = append(matching, p)
		}
	}
	if len(matching) == 0 {
		return nil, ""
	}

	names := make([]string, len(matching))
	for i, p := range matching {
		names[i] = p.Name()
	}
	r.logger.Printf("query matched %d providers: %v", len(matching), names)

	results := make([]ToolResult, len(matching))
	var wg sync.WaitGroup
	for i, p := range matching {
		wg.Add(1)
		go func(pos int, provider CapabilityProvider) {
			defer wg.Done()
			started := time.Now()
			result := provider.Execute(ctx, query)
			if r.telemetry != nil {
				r.telemetry.RecordProviderExecution(provider.Name(), result.Success, time.Since(started))
			}
			if result.Success {
				r.logger.Printf("%s provider executed successfully", provider.Name())
			} else {
				r.logger.Printf("%s provider failed: %s", provider.Name(), result.Error)
			}
			results[pos] = result
		}(i, p)
	}
	wg.Wait()

	var parts []string
	for i, p := range matching {
		if formatted := p.FormatForLLM(results[i]); formatted != "" {
			parts = append(parts, formatted)
		}
	}
	return results, strings.Join(parts, "\n\n")
}

// ToolsHandledQuery reports whether at least one provider produced a
// successful result; callers use it to skip retrieval for handled queries.
func ToolsHandledQuery(results []ToolResult) bool {
	for _, res := range results {
		if res.Success {
			return true
		}
	}
	return false
}

// HealthCheckAll probes every registered provider concurrently.
func (r *Router) HealthCheckAll(ctx context.Context) map[string]bool {
	status := make(map[string]bool, len(r.providers))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, p := range r.providers {
		wg.Add(1)
		go func(provider CapabilityProvider) {
			defer wg.Done()
			healthy := provider.HealthCheck(ctx)
			mu.Lock()
			status[provider.Name()] = healthy
			mu.Unlock()
		}(p)
	}
	wg.Wait()
	return status
}

// Info returns diagnostic descriptions of every registered provider.
func (r *Router) Info() []ProviderInfo {
	info := make([]ProviderInfo, 0, len(r.providers))
	for _, p := range r.providers {
		keywords := p.IntentKeywords()
		if len(keywords) > 10 {
			keywords = keywords[:10]
		}
		info = append(info, ProviderInfo{
			Name:        p.Name(),
			Description: p.Description(),
			Available:   true,
			Keywords:    keywords,
		})
	}
	return info
}
