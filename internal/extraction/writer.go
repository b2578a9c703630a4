package extraction

import (
	"context"

	"github.com/wolfman30/intake-agent/internal/appointment"
	"github.com/wolfman30/intake-agent/internal/llm"
	"github.com/wolfman30/intake-agent/pkg/logging"
)

// Writer produces the user-facing prose around a booking: follow-up
// questions, the booking summary and the confirmation. Every method returns
// "" when the oracle fails.
type Writer struct {
	client   llm.Client
	sampling llm.Sampling
	logger   *logging.Logger
}

func NewWriter(client llm.Client, sampling llm.Sampling, logger *logging.Logger) *Writer {
	if client == nil {
		panic("extraction: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Writer{client: client, sampling: sampling, logger: logger}
}

// Questions asks for exactly the missing fields. With nothing missing it
// returns AllCollectedMessage without calling the oracle.
func (w *Writer) Questions(ctx context.Context, missing []appointment.Field) string {
	if len(missing) == 0 {
		return AllCollectedMessage
	}
	return w.generate(ctx, llm.PurposeQuestions, questionsPrompt(missing))
}

func (w *Writer) Summary(ctx context.Context, c appointment.Context) string {
	prompt, err := summaryPrompt(c)
	if err != nil {
		w.logger.Warn("summary prompt failed", "error", err)
		return ""
	}
	return w.generate(ctx, llm.PurposeSummary, prompt)
}

func (w *Writer) Confirmation(ctx context.Context, summary string) string {
	return w.generate(ctx, llm.PurposeConfirmation, confirmationPrompt(summary))
}

func (w *Writer) generate(ctx context.Context, purpose, prompt string) string {
	text, err := llm.Text(ctx, w.client, w.sampling.NewPrompt(purpose, prompt))
	if err != nil {
		w.logger.Warn("text generation failed", "purpose", purpose, "error", err)
		return ""
	}
	return text
}
