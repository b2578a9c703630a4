package bootstrap

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/intake-agent/internal/bookings"
	appconfig "github.com/wolfman30/intake-agent/internal/config"
	"github.com/wolfman30/intake-agent/internal/conversation"
	"github.com/wolfman30/intake-agent/internal/extraction"
	"github.com/wolfman30/intake-agent/internal/llm"
	"github.com/wolfman30/intake-agent/internal/observability/metrics"
	"github.com/wolfman30/intake-agent/internal/session"
	"github.com/wolfman30/intake-agent/pkg/logging"
)

// ConversationDeps are the already-built collaborators of the turn service.
type ConversationDeps struct {
	Oracle  llm.Client
	Store   session.Store
	Sink    bookings.Sink
	Metrics *metrics.IntakeMetrics
}

// BuildConversationService wires the extractor, writer and session manager
// around the oracle.
func BuildConversationService(cfg *appconfig.Config, deps ConversationDeps, logger *logging.Logger) (*conversation.Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if deps.Oracle == nil {
		return nil, fmt.Errorf("bootstrap: oracle is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("bootstrap: session store is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	profile, err := extraction.LoadProfile(cfg.ExtractionProfilePath)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	profile, err = profile.WithReferenceDate(cfg.ExtractionReferenceDate)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	sampling := Sampling(cfg)
	extractor := extraction.NewExtractor(deps.Oracle, logger,
		extraction.WithProfile(profile),
		extraction.WithSampling(sampling),
		extraction.WithLocation(cfg.Location()),
		extraction.WithMetrics(deps.Metrics),
	)
	writer := extraction.NewWriter(deps.Oracle, sampling, logger)

	opts := []conversation.Option{
		conversation.WithMetrics(deps.Metrics),
		conversation.WithConfirmation(cfg.GenerateConfirmation),
	}
	if deps.Sink != nil {
		opts = append(opts, conversation.WithSink(deps.Sink))
	}
	logger.Info("conversation service configured",
		"profile", profile.Name,
		"confirmation", cfg.GenerateConfirmation,
	)
	return conversation.NewService(session.NewManager(deps.Store), extractor, writer, logger, opts...), nil
}

// BuildBookingSink fans finalized bookings out to every configured
// destination. The log sink is always present.
func BuildBookingSink(cfg *appconfig.Config, awsCfg *aws.Config, pool *pgxpool.Pool, logger *logging.Logger) bookings.Multi {
	if logger == nil {
		logger = logging.Default()
	}
	sinks := bookings.Multi{bookings.NewLogSink(logger)}
	if cfg == nil {
		return sinks
	}

	if pool != nil {
		sinks = append(sinks, bookings.NewPostgresSink(pool))
		logger.Info("booking archive enabled")
	}
	if cfg.BookingsQueueURL != "" {
		if awsCfg == nil {
			logger.Warn("bookings queue configured without aws config; skipping", "queue_url", cfg.BookingsQueueURL)
		} else {
			sinks = append(sinks, bookings.NewSQSSink(sqs.NewFromConfig(*awsCfg), cfg.BookingsQueueURL))
			logger.Info("booking queue enabled", "queue_url", cfg.BookingsQueueURL)
		}
	}
	if email := bookings.NewEmailSink(bookings.EmailConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
		To:        cfg.BookingsNotifyEmail,
	}, logger); email != nil {
		sinks = append(sinks, email)
		logger.Info("booking email notifications enabled", "to", cfg.BookingsNotifyEmail)
	}
	return sinks
}
