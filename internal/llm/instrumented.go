package llm

import (
	"context"
	"strings"
	"time"

	"github.com/wolfman30/intake-agent/internal/observability/metrics"
	"github.com/wolfman30/intake-agent/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var llmTracer = otel.Tracer("intake.internal.llm")

// Instrumented adds a per-call timeout, a span, latency/token metrics and
// failure logging around another Client.
type Instrumented struct {
	next     Client
	provider string
	metrics  *metrics.IntakeMetrics
	timeout  time.Duration
	logger   *logging.Logger
}

// NewInstrumented wraps next. A zero timeout disables the per-call deadline.
func NewInstrumented(next Client, provider string, m *metrics.IntakeMetrics, timeout time.Duration, logger *logging.Logger) *Instrumented {
	if next == nil {
		panic("llm: instrumented client requires a delegate")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Instrumented{next: next, provider: provider, metrics: m, timeout: timeout, logger: logger}
}

func (c *Instrumented) Complete(ctx context.Context, req Request) (Response, error) {
	ctx, span := llmTracer.Start(ctx, "llm.complete")
	defer span.End()

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.next.Complete(callCtx, req)
	if err == nil && strings.TrimSpace(resp.Text) == "" {
		err = ErrEmptyResponse
	}
	latency := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.ObserveOracle(c.provider, req.Purpose, status, latency.Seconds())
	if span.IsRecording() {
		span.SetAttributes(
			attribute.String("intake.llm.provider", c.provider),
			attribute.String("intake.llm.purpose", req.Purpose),
			attribute.Float64("intake.llm.latency_ms", float64(latency.Milliseconds())),
			attribute.Int("intake.llm.input_tokens", int(resp.Usage.InputTokens)),
			attribute.Int("intake.llm.output_tokens", int(resp.Usage.OutputTokens)),
			attribute.String("intake.llm.stop_reason", resp.StopReason),
		)
	}
	if err != nil {
		span.RecordError(err)
		c.logger.Warn("llm completion failed",
			"provider", c.provider,
			"purpose", req.Purpose,
			"latency_ms", latency.Milliseconds(),
			"error", err,
		)
		return Response{}, err
	}

	c.metrics.ObserveTokens(c.provider, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return resp, nil
}
