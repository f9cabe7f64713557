package research

import (
	"net/http"
	"time"

	"dossier/internal/tools"
)

// Options configures the research tools.
type Options struct {
	WebSearchEnabled bool
	Endpoint         string
	MaxResults       int
	CacheSize        int
	CacheTTL         time.Duration
	// HTTPClient overrides the client used for live search.
	HTTPClient *http.Client
}

// RegisterAll registers all research tools with the given registry.
func RegisterAll(registry *tools.Registry, opts Options) error {
	web := disabledWebSearch()
	if opts.WebSearchEnabled {
		var cache *ResultCache
		if opts.CacheSize > 0 && opts.CacheTTL > 0 {
			cache = NewResultCache(opts.CacheSize, opts.CacheTTL)
		}
		web = NewWebSearcher(opts.Endpoint, opts.MaxResults, cache, opts.HTTPClient).Tool()
	}

	allTools := []*tools.Tool{
		web,
		SocialMediaTool(),
		CompanyDatabaseTool(),
		AcademicTool(),
	}

	for _, tool := range allTools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}

	return nil
}
