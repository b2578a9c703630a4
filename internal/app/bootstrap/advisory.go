package bootstrap

import (
	"github.com/wolfman30/intake-agent/internal/advisory"
	appconfig "github.com/wolfman30/intake-agent/internal/config"
	"github.com/wolfman30/intake-agent/internal/observability/metrics"
	"github.com/wolfman30/intake-agent/pkg/logging"
)

// BuildAdvisoryHandler wires the scheme/lawyer search and legal advice
// endpoints. Legal advice answers with a configuration error until a Groq
// key is set.
func BuildAdvisoryHandler(cfg *appconfig.Config, m *metrics.IntakeMetrics, logger *logging.Logger) *advisory.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	var (
		baseURL    string
		maxResults int
	)
	if cfg != nil {
		baseURL = cfg.SearchBaseURL
		maxResults = cfg.SearchMaxResults
	}
	search := advisory.NewDuckDuckGo(baseURL, advisory.WithLogger(logger))
	advisor := advisory.NewAdvisor(BuildLegalAdviceClient(cfg, m, logger))
	return advisory.NewHandler(search, advisor, maxResults, logger)
}
