package extraction

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/intake-agent/internal/appointment"
)

// AllCollectedMessage is returned by Writer.Questions when nothing is missing.
const AllCollectedMessage = "All information collected!"

const questionsPromptTemplate = `Generate 1-2 brief, natural follow-up questions to ask the user to get this missing information:
%s

Be conversational and helpful. Ask for all the missing information together if possible.
Keep questions short and natural, as if talking to someone in person.
Do not number the questions. Just ask naturally.`

const summaryPromptTemplate = `Based on this complete appointment information:
%s

Create a concise summary that can be used to book an appointment. Include:
1. Patient details
2. Doctor specialty needed
3. Preferred appointment time
4. Reason for visit
5. Any relevant symptoms

Format it as a clear, professional appointment request.`

const confirmationPromptTemplate = `Create a confirmation message for this appointment booking:
%s

Include confirmation number (format: APT-XXXXX), appointment details, and next steps.
Keep it professional and brief.`

// BuildPrompt renders the extraction instruction for one utterance.
func BuildPrompt(p Profile, utterance string, now time.Time) string {
	var b strings.Builder
	b.WriteString("Extract appointment booking information from this user message. Return ONLY valid JSON.\n\n")
	b.WriteString("Instructions:\n")
	for _, line := range p.renderGuidance(now) {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\nFields to extract (all should be present, use null if not mentioned):\n")
	for _, f := range appointment.AllFields() {
		b.WriteString("- ")
		b.WriteString(string(f))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nUser message: %q\n\n", utterance)
	b.WriteString("Return ONLY valid JSON, no explanation.")
	return b.String()
}

func questionsPrompt(missing []appointment.Field) string {
	return fmt.Sprintf(questionsPromptTemplate, appointment.Phrases(missing))
}

func summaryPrompt(c appointment.Context) (string, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("extraction: marshal context: %w", err)
	}
	return fmt.Sprintf(summaryPromptTemplate, data), nil
}

func confirmationPrompt(summary string) string {
	return fmt.Sprintf(confirmationPromptTemplate, summary)
}
