package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wolfman30/intake-agent/internal/appointment"
	"github.com/wolfman30/intake-agent/internal/bookings"
	"github.com/wolfman30/intake-agent/internal/extraction"
	"github.com/wolfman30/intake-agent/internal/llm"
	"github.com/wolfman30/intake-agent/internal/observability/metrics"
	"github.com/wolfman30/intake-agent/internal/session"
	"github.com/wolfman30/intake-agent/pkg/logging"
)

// scriptedLLM answers extraction calls from a queue and every other purpose
// with a canned reply.
type scriptedLLM struct {
	mu           sync.Mutex
	extractions  []string
	questions    string
	summary      string
	confirmation string
	calls        map[string]int
}

func newScriptedLLM(extractions ...string) *scriptedLLM {
	return &scriptedLLM{
		extractions:  extractions,
		questions:    "Which specialist would you like to see, and what time suits you?",
		summary:      "Pediatric appointment for Asha.",
		confirmation: "Your appointment is confirmed. Confirmation code: APT-48213.",
		calls:        make(map[string]int),
	}
}

func (s *scriptedLLM) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[req.Purpose]++
	switch req.Purpose {
	case llm.PurposeExtract:
		if len(s.extractions) == 0 {
			return llm.Response{Text: "{}"}, nil
		}
		next := s.extractions[0]
		s.extractions = s.extractions[1:]
		return llm.Response{Text: next}, nil
	case llm.PurposeQuestions:
		return llm.Response{Text: s.questions}, nil
	case llm.PurposeSummary:
		return llm.Response{Text: s.summary}, nil
	case llm.PurposeConfirmation:
		return llm.Response{Text: s.confirmation}, nil
	}
	return llm.Response{}, fmt.Errorf("unexpected purpose %q", req.Purpose)
}

func (s *scriptedLLM) count(purpose string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[purpose]
}

type recordingSink struct {
	mu  sync.Mutex
	got []bookings.Booking
	err error
}

func (r *recordingSink) Record(_ context.Context, b bookings.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, b)
	return r.err
}

func newTestService(t *testing.T, client llm.Client, store session.Store, opts ...Option) *Service {
	t.Helper()
	if store == nil {
		store = session.NewMemoryStore(100, time.Hour, nil)
	}
	clock := func() time.Time { return time.Date(2026, 1, 4, 15, 0, 0, 0, time.UTC) }
	ex := extraction.NewExtractor(client, logging.Discard(), extraction.WithClock(clock))
	wr := extraction.NewWriter(client, llm.DefaultSampling(), logging.Discard())
	return NewService(session.NewManager(store), ex, wr, logging.Discard(), opts...)
}

const allRequired = `{"doctor_specialty":"pediatrician","preferred_date":"2026-01-05","preferred_time":"12:00 PM","patient_name":"Asha","reason":"fever"}`

func TestHandleTurnNameAndDateStillCollecting(t *testing.T) {
	client := newScriptedLLM(`{"patient_name":"Asha","preferred_date":"2026-01-05","doctor_specialty":null}`)
	svc := newTestService(t, client, nil)

	res := svc.HandleTurn(context.Background(), TurnRequest{Message: "I'm Asha and I'd like to come in tomorrow"})

	if res.Status != StatusCollectingInfo {
		t.Fatalf("status = %s, want collecting_info (%s)", res.Status, res.Error)
	}
	if res.SessionID == "" {
		t.Fatal("expected a minted session id")
	}
	want := []appointment.Field{appointment.FieldDoctorSpecialty, appointment.FieldPreferredTime, appointment.FieldReason}
	if fmt.Sprint(res.MissingFields) != fmt.Sprint(want) {
		t.Fatalf("missing = %v, want %v", res.MissingFields, want)
	}
	wantMessage := "✓ Information collected so far:\n" +
		"  • Preferred Date: 2026-01-05\n" +
		"  • Patient Name: Asha\n" +
		"\n" +
		"Still need: doctor specialty, preferred time, reason\n\n" +
		client.questions
	if res.Message != wantMessage {
		t.Fatalf("unexpected message:\n%q\nwant:\n%q", res.Message, wantMessage)
	}
	if res.Questions != client.questions {
		t.Fatalf("questions = %q", res.Questions)
	}
	if res.CollectedInfo["patient_name"] != "Asha" || len(res.CollectedInfo) != 2 {
		t.Fatalf("unexpected collected info %v", res.CollectedInfo)
	}
	if res.Extraction != extraction.StatusOK {
		t.Fatalf("extraction = %s", res.Extraction)
	}
}

func TestHandleTurnFullFlowFinalizesOnDone(t *testing.T) {
	client := newScriptedLLM(allRequired)
	store := session.NewMemoryStore(100, time.Hour, nil)
	sink := &recordingSink{}
	svc := newTestService(t, client, store, WithSink(sink))
	ctx := context.Background()

	first := svc.HandleTurn(ctx, TurnRequest{SessionID: "s-1", Message: "Pediatrician tomorrow at noon for Asha, she has a fever"})
	if first.Status != StatusAskSymptoms {
		t.Fatalf("status = %s, want ask_symptoms (%s)", first.Status, first.Error)
	}
	if first.Message != askSymptomsMessage {
		t.Fatalf("unexpected message %q", first.Message)
	}
	if len(first.MissingFields) != 0 || first.MissingFields == nil {
		t.Fatalf("expected empty, non-nil missing fields: %#v", first.MissingFields)
	}
	if client.count(llm.PurposeQuestions) != 0 {
		t.Fatal("questions should not be generated once required fields are present")
	}

	done := svc.HandleTurn(ctx, TurnRequest{SessionID: "s-1", Message: "  DONE "})
	if done.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed (%s)", done.Status, done.Error)
	}
	if done.ExtractedInfo.PatientName != "Asha" || done.ExtractedInfo.PreferredTime != "12:00 PM" {
		t.Fatalf("finalized context lost values: %#v", done.ExtractedInfo)
	}
	if !strings.HasPrefix(done.Message, finalizedHeadline) || !strings.Contains(done.Message, "APT-48213") {
		t.Fatalf("unexpected message %q", done.Message)
	}
	if done.Booking == nil || done.Booking.Trigger != bookings.TriggerDone || done.Booking.Summary != client.summary {
		t.Fatalf("unexpected booking %#v", done.Booking)
	}
	if client.count(llm.PurposeExtract) != 1 {
		t.Fatalf("completion token must not be sent to extraction, got %d extract calls", client.count(llm.PurposeExtract))
	}

	if len(sink.got) != 1 || sink.got[0].ID != done.Booking.ID {
		t.Fatalf("expected booking delivered to sink, got %#v", sink.got)
	}

	stored, err := store.Get(ctx, "s-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(stored.Context.Collected()) != 0 || stored.Phase != session.PhaseCollecting {
		t.Fatalf("expected context reset after finalization, got %#v", stored)
	}
	if stored.Turns != 2 {
		t.Fatalf("turns = %d, want 2", stored.Turns)
	}
}

func TestHandleTurnAppendsSymptomsUntilAllFilled(t *testing.T) {
	client := newScriptedLLM(
		`{"doctor_specialty":"pediatrician","preferred_date":"2026-01-05","preferred_time":"12:00 PM","patient_name":"Asha","reason":"checkup","symptoms":"cough"}`,
		`{"symptoms":["fever"],"patient_name":"Someone Else"}`,
		`{"patient_age":"7","patient_phone":"555-0100"}`,
	)
	svc := newTestService(t, client, nil, WithConfirmation(false))
	ctx := context.Background()

	if res := svc.HandleTurn(ctx, TurnRequest{SessionID: "s", Message: "details"}); res.Status != StatusAskSymptoms {
		t.Fatalf("first turn status = %s", res.Status)
	}

	second := svc.HandleTurn(ctx, TurnRequest{SessionID: "s", Message: "she also has a fever"})
	if second.Status != StatusAskSymptoms || second.Message != moreSymptomsMessage {
		t.Fatalf("unexpected second turn %s %q", second.Status, second.Message)
	}
	if got := second.ExtractedInfo.SymptomText(); got != "cough, fever" {
		t.Fatalf("symptoms = %q, want %q", got, "cough, fever")
	}
	if second.ExtractedInfo.PatientName != "Asha" {
		t.Fatalf("patient name overwritten: %q", second.ExtractedInfo.PatientName)
	}

	third := svc.HandleTurn(ctx, TurnRequest{SessionID: "s", Message: "she is 7, call 555-0100"})
	if third.Status != StatusCompleted {
		t.Fatalf("third turn status = %s (%s)", third.Status, third.Error)
	}
	if third.Booking.Trigger != bookings.TriggerAllFields || !strings.HasPrefix(third.Message, allFilledHeadline) {
		t.Fatalf("unexpected finalization %#v %q", third.Booking, third.Message)
	}
	if third.Booking.Summary != "" || client.count(llm.PurposeSummary) != 0 {
		t.Fatal("confirmation generation was disabled")
	}
}

func TestHandleTurnSymptomsPhaseFillsOtherEmptyFields(t *testing.T) {
	client := newScriptedLLM(
		`{"doctor_specialty":"pediatrician","preferred_date":"2026-01-05","preferred_time":"12:00 PM","patient_name":"Asha","patient_age":"7","reason":"checkup","symptoms":"cough"}`,
		`{"patient_phone":"555-0100","reason":"something else"}`,
	)
	sink := &recordingSink{}
	svc := newTestService(t, client, nil, WithSink(sink), WithConfirmation(false))
	ctx := context.Background()

	if res := svc.HandleTurn(ctx, TurnRequest{SessionID: "s", Message: "details"}); res.Status != StatusAskSymptoms {
		t.Fatalf("first turn status = %s", res.Status)
	}

	res := svc.HandleTurn(ctx, TurnRequest{SessionID: "s", Message: "my number is 555-0100"})
	if res.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed (%s)", res.Status, res.Error)
	}
	if res.Booking.Trigger != bookings.TriggerAllFields {
		t.Fatalf("trigger = %s, want all_fields", res.Booking.Trigger)
	}
	if len(sink.got) != 1 {
		t.Fatalf("expected one booking, got %d", len(sink.got))
	}
	details := sink.got[0].Details
	if details.PatientPhone != "555-0100" {
		t.Fatalf("phone = %q, want 555-0100", details.PatientPhone)
	}
	if details.Reason != "checkup" {
		t.Fatalf("reason overwritten: %q", details.Reason)
	}
	if details.SymptomText() != "cough" {
		t.Fatalf("symptoms = %q", details.SymptomText())
	}
}

func TestHandleTurnUnparsableOracleLeavesContext(t *testing.T) {
	client := newScriptedLLM(`{"patient_name":"Asha"}`, "Sorry, I can't help with that.")
	store := session.NewMemoryStore(100, time.Hour, nil)
	svc := newTestService(t, client, store)
	ctx := context.Background()

	svc.HandleTurn(ctx, TurnRequest{SessionID: "s", Message: "I'm Asha"})
	res := svc.HandleTurn(ctx, TurnRequest{SessionID: "s", Message: "???"})

	if res.Status != StatusCollectingInfo {
		t.Fatalf("status = %s, want collecting_info", res.Status)
	}
	if res.Extraction != extraction.StatusMalformed {
		t.Fatalf("extraction = %s, want malformed", res.Extraction)
	}
	if res.ExtractedInfo.PatientName != "Asha" || len(res.CollectedInfo) != 1 {
		t.Fatalf("context changed: %#v", res.ExtractedInfo)
	}
}

type failingStore struct {
	session.Store
	saveErr error
}

func (f *failingStore) Save(ctx context.Context, s *session.Session) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.Store.Save(ctx, s)
}

func TestHandleTurnSaveFailureReportsError(t *testing.T) {
	client := newScriptedLLM(`{"patient_name":"Asha"}`, `{"doctor_specialty":"cardiologist"}`)
	store := &failingStore{Store: session.NewMemoryStore(100, time.Hour, nil)}
	svc := newTestService(t, client, store)
	ctx := context.Background()

	svc.HandleTurn(ctx, TurnRequest{SessionID: "s", Message: "I'm Asha"})
	store.saveErr = errors.New("disk full")

	res := svc.HandleTurn(ctx, TurnRequest{SessionID: "s", Message: "a cardiologist"})
	if res.Status != StatusError || res.Message != "disk full" {
		t.Fatalf("expected error result, got %s %q", res.Status, res.Message)
	}
	if res.ExtractedInfo.PatientName != "Asha" || res.ExtractedInfo.DoctorSpecialty != "" {
		t.Fatalf("error result should carry the prior context: %#v", res.ExtractedInfo)
	}
	stored, err := store.Get(ctx, "s")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Context.DoctorSpecialty != "" || stored.Turns != 1 {
		t.Fatalf("failed turn leaked into the store: %#v", stored)
	}
}

func TestHandleTurnRejectsEmptyMessage(t *testing.T) {
	client := newScriptedLLM()
	svc := newTestService(t, client, nil)
	res := svc.HandleTurn(context.Background(), TurnRequest{SessionID: "s", Message: "   "})
	if res.Status != StatusError || !errors.Is(res.Err(), ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %s %v", res.Status, res.Err())
	}
	if client.count(llm.PurposeExtract) != 0 {
		t.Fatal("empty messages must not reach the oracle")
	}
}

type panickingExtractor struct{}

func (panickingExtractor) Extract(context.Context, string) extraction.Result {
	panic("boom")
}

func TestHandleTurnRecoversFromPanics(t *testing.T) {
	store := session.NewMemoryStore(100, time.Hour, nil)
	client := newScriptedLLM()
	svc := NewService(session.NewManager(store), panickingExtractor{}, extraction.NewWriter(client, llm.DefaultSampling(), nil), logging.Discard())

	res := svc.HandleTurn(context.Background(), TurnRequest{SessionID: "s", Message: "hello"})
	if res.Status != StatusError || !strings.Contains(res.Message, "boom") {
		t.Fatalf("expected recovered error, got %s %q", res.Status, res.Message)
	}

	again := svc.HandleTurn(context.Background(), TurnRequest{SessionID: "s", Message: "hello"})
	if again.Status != StatusError {
		t.Fatalf("lock should have been released, got %s", again.Status)
	}
}

func TestHandleTurnSerializesSameSession(t *testing.T) {
	client := newScriptedLLM()
	store := session.NewMemoryStore(100, time.Hour, nil)
	svc := newTestService(t, client, store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.HandleTurn(ctx, TurnRequest{SessionID: "shared", Message: "hello"})
		}()
	}
	wg.Wait()

	stored, err := store.Get(ctx, "shared")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Turns != 10 {
		t.Fatalf("turns = %d, want 10 (lost updates)", stored.Turns)
	}
}

func TestServiceResetAndSnapshot(t *testing.T) {
	client := newScriptedLLM(`{"patient_name":"Asha"}`)
	svc := newTestService(t, client, nil)
	ctx := context.Background()

	svc.HandleTurn(ctx, TurnRequest{SessionID: "keep", Message: "I'm Asha"})

	if err := svc.Reset(ctx, ""); !errors.Is(err, session.ErrMissingSessionID) {
		t.Fatalf("expected ErrMissingSessionID, got %v", err)
	}
	snap, err := svc.Snapshot(ctx, "keep")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Context.PatientName != "Asha" {
		t.Fatalf("existing session changed by blank reset: %#v", snap.Context)
	}

	if err := svc.Reset(ctx, "keep"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	snap, err = svc.Snapshot(ctx, "keep")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Context.Collected()) != 0 {
		t.Fatalf("expected empty context after reset, got %#v", snap.Context)
	}

	if _, err := svc.Snapshot(ctx, "missing"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHandleTurnRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewIntakeMetrics(reg)
	client := newScriptedLLM(allRequired)
	svc := newTestService(t, client, nil, WithMetrics(m), WithConfirmation(false))
	ctx := context.Background()

	svc.HandleTurn(ctx, TurnRequest{SessionID: "m", Message: "everything"})
	svc.HandleTurn(ctx, TurnRequest{SessionID: "m", Message: "no"})

	expected := `
# HELP intake_bookings_finalized_total Finalized bookings by trigger
# TYPE intake_bookings_finalized_total counter
intake_bookings_finalized_total{trigger="done"} 1
# HELP intake_turns_total Conversation turns by resulting status
# TYPE intake_turns_total counter
intake_turns_total{status="ask_symptoms"} 1
intake_turns_total{status="completed"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "intake_turns_total", "intake_bookings_finalized_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestSinkFailureDoesNotFailTurn(t *testing.T) {
	client := newScriptedLLM(allRequired)
	sink := &recordingSink{err: errors.New("queue unavailable")}
	svc := newTestService(t, client, nil, WithSink(sink))
	ctx := context.Background()

	svc.HandleTurn(ctx, TurnRequest{SessionID: "s", Message: "everything"})
	res := svc.HandleTurn(ctx, TurnRequest{SessionID: "s", Message: "done"})
	if res.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", res.Status)
	}
	if len(sink.got) != 1 {
		t.Fatalf("expected one delivery attempt, got %d", len(sink.got))
	}
}

func TestIsCompletionToken(t *testing.T) {
	for in, want := range map[string]bool{"done": true, " No ": true, "DONE": true, "nope": false, "done!": false, "": false} {
		if got := IsCompletionToken(in); got != want {
			t.Errorf("IsCompletionToken(%q) = %v, want %v", in, got, want)
		}
	}
}
