package extraction

import (
	"context"
	"time"

	"github.com/wolfman30/intake-agent/internal/appointment"
	"github.com/wolfman30/intake-agent/internal/llm"
	"github.com/wolfman30/intake-agent/internal/observability/metrics"
	"github.com/wolfman30/intake-agent/pkg/logging"
)

// Status tells callers why an extraction did or did not yield fields.
type Status string

const (
	StatusOK          Status = "ok"
	StatusEmpty       Status = "empty"
	StatusMalformed   Status = "malformed"
	StatusUnavailable Status = "unavailable"
)

// Result is one extraction attempt. Fields is always safe to merge: it is
// empty for every status other than StatusOK.
type Result struct {
	Fields appointment.Context
	Status Status
	Raw    string
	Err    error
}

// Extracted reports whether at least one field was recovered.
func (r Result) Extracted() bool {
	return r.Status == StatusOK
}

// Extractor asks the oracle to pull appointment fields out of free text.
type Extractor struct {
	client   llm.Client
	profile  Profile
	sampling llm.Sampling
	now      func() time.Time
	location *time.Location
	metrics  *metrics.IntakeMetrics
	logger   *logging.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

func WithProfile(p Profile) Option {
	return func(e *Extractor) { e.profile = p }
}

func WithSampling(s llm.Sampling) Option {
	return func(e *Extractor) { e.sampling = s }
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLocation sets the timezone "today" is computed in.
func WithLocation(loc *time.Location) Option {
	return func(e *Extractor) {
		if loc != nil {
			e.location = loc
		}
	}
}

func WithMetrics(m *metrics.IntakeMetrics) Option {
	return func(e *Extractor) { e.metrics = m }
}

func NewExtractor(client llm.Client, logger *logging.Logger, opts ...Option) *Extractor {
	if client == nil {
		panic("extraction: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Extractor{
		client:   client,
		profile:  DefaultProfile(),
		sampling: llm.DefaultSampling(),
		now:      time.Now,
		location: time.UTC,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract never fails: oracle and parse problems are reported through
// Result.Status and leave Result.Fields empty.
func (e *Extractor) Extract(ctx context.Context, utterance string) Result {
	prompt := BuildPrompt(e.profile, utterance, e.now().In(e.location))
	raw, err := llm.Text(ctx, e.client, e.sampling.NewPrompt(llm.PurposeExtract, prompt))
	if err != nil {
		e.logger.Warn("extraction oracle unavailable", "error", err)
		return e.finish(Result{Status: StatusUnavailable, Err: err})
	}

	fields, dropped, err := parseResponse(raw)
	if err != nil {
		e.logger.Warn("extraction response could not be parsed",
			"error", err,
			"raw", truncate(raw, 500),
		)
		return e.finish(Result{Status: StatusMalformed, Raw: raw, Err: err})
	}

	if len(dropped) > 0 {
		e.logger.Warn("extraction response had unusable fields", "fields", dropped)
	}

	if len(fields.Collected()) == 0 {
		return e.finish(Result{Status: StatusEmpty, Raw: raw})
	}
	return e.finish(Result{Fields: fields, Status: StatusOK, Raw: raw})
}

func (e *Extractor) finish(r Result) Result {
	e.metrics.ObserveExtraction(string(r.Status))
	return r
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
