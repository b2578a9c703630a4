package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"github.com/wolfman30/intake-agent/internal/app/bootstrap"
	appconfig "github.com/wolfman30/intake-agent/internal/config"
	"github.com/wolfman30/intake-agent/internal/conversation"
	"github.com/wolfman30/intake-agent/pkg/logging"
)

const (
	appTitle  = "Doctor Appointment Booking Agent"
	separator = "======================================================================"
)

type options struct {
	Provider      string `long:"provider" description:"Oracle provider (ollama, openai, groq, bedrock, gemini); overrides LLM_PROVIDER"`
	Model         string `long:"model" description:"Model name; overrides LLM_MODEL"`
	Profile       string `long:"profile" description:"Path to an extraction profile YAML"`
	ReferenceDate string `long:"reference-date" description:"Date relative expressions resolve against (YYYY-MM-DD)"`
	Session       string `long:"session" description:"Resume this session id"`
	LogLevel      string `long:"log-level" default:"warn" description:"Log level written to stderr"`
	KeepGoing     bool   `long:"keep-going" description:"Start a new booking after one is finalized instead of exiting"`
}

func main() {
	_ = godotenv.Load()

	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	parser.ShortDescription = appTitle
	if _, err := parser.Parse(); err != nil {
		var fe *flags.Error
		if errors.As(err, &fe) && fe.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}

	cfg := appconfig.Load()
	applyOptions(cfg, opts)
	logger := logging.NewWithWriter(os.Stderr, opts.LogLevel, logging.FormatPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	service, err := buildService(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}

	loop := &repl{
		service:   service,
		in:        bufio.NewScanner(os.Stdin),
		out:       os.Stdout,
		sessionID: opts.Session,
		keepGoing: opts.KeepGoing,
	}
	if err := loop.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("session ended with error", "error", err)
		os.Exit(1)
	}
}

func applyOptions(cfg *appconfig.Config, opts options) {
	if p := strings.ToLower(strings.TrimSpace(opts.Provider)); p != "" {
		cfg.LLMProvider = p
	}
	if m := strings.TrimSpace(opts.Model); m != "" {
		cfg.LLMModel = m
	}
	if p := strings.TrimSpace(opts.Profile); p != "" {
		cfg.ExtractionProfilePath = p
	}
	if d := strings.TrimSpace(opts.ReferenceDate); d != "" {
		cfg.ExtractionReferenceDate = d
	}
}

// buildService wires the same turn service the API uses, minus the HTTP
// surface. Sessions live in memory for the life of the process.
func buildService(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*conversation.Service, error) {
	awsCfg, err := bootstrap.LoadAWS(ctx, cfg)
	if err != nil {
		return nil, err
	}
	oracle, err := bootstrap.BuildOracle(ctx, cfg, awsCfg, nil, logger)
	if err != nil {
		return nil, err
	}
	cfg.SessionBackend = "memory"
	store, _ := bootstrap.BuildSessionStore(ctx, cfg, nil, logger)
	return bootstrap.BuildConversationService(cfg, bootstrap.ConversationDeps{
		Oracle: oracle,
		Store:  store,
		Sink:   bootstrap.BuildBookingSink(cfg, awsCfg, nil, logger),
	}, logger)
}

type turnHandler interface {
	HandleTurn(ctx context.Context, req conversation.TurnRequest) *conversation.TurnResult
}

// repl is the interactive prompt loop.
type repl struct {
	service   turnHandler
	in        *bufio.Scanner
	out       io.Writer
	sessionID string
	keepGoing bool
}

func (s *repl) run(ctx context.Context) error {
	s.banner()
	lastStatus := conversation.Status("")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(s.out, "You: ")
		if !s.in.Scan() {
			if err := s.in.Err(); err != nil {
				return fmt.Errorf("intake-cli: read input: %w", err)
			}
			s.goodbye()
			return nil
		}
		input := strings.TrimSpace(s.in.Text())
		if strings.EqualFold(input, "exit") {
			s.goodbye()
			return nil
		}
		if input == "" {
			fmt.Fprint(s.out, "Please enter a valid input.\n\n")
			continue
		}

		if lastStatus == conversation.StatusAskSymptoms && !conversation.IsCompletionToken(input) {
			fmt.Fprintln(s.out, "\n🤖 Processing additional symptoms...")
		} else if lastStatus != conversation.StatusAskSymptoms {
			fmt.Fprintln(s.out, "\n🤖 Processing your request...")
		}

		result := s.service.HandleTurn(ctx, conversation.TurnRequest{SessionID: s.sessionID, Message: input})
		if result.SessionID != "" {
			s.sessionID = result.SessionID
		}
		lastStatus = result.Status

		fmt.Fprintf(s.out, "\n%s\n", separator)
		switch result.Status {
		case conversation.StatusCompleted:
			if err := s.printFinal(result); err != nil {
				return err
			}
			if !s.keepGoing {
				s.goodbye()
				return nil
			}
			lastStatus = ""
		case conversation.StatusError:
			fmt.Fprintf(s.out, "Error: %s\n%s\n\n", result.Error, separator)
		default:
			fmt.Fprintf(s.out, "Agent:\n%s\n%s\n\n", result.Message, separator)
		}
	}
}

func (s *repl) printFinal(result *conversation.TurnResult) error {
	details := result.ExtractedInfo
	if result.Booking != nil {
		details = result.Booking.Details
	}
	data, err := json.MarshalIndent(details, "", "  ")
	if err != nil {
		return fmt.Errorf("intake-cli: encode appointment: %w", err)
	}
	fmt.Fprintf(s.out, "%s\n\nFinal Appointment Context:\n%s\n%s\n\n", result.Message, data, separator)
	return nil
}

func (s *repl) banner() {
	fmt.Fprintln(s.out, separator)
	fmt.Fprintln(s.out, appTitle)
	fmt.Fprintln(s.out, separator)
	fmt.Fprintln(s.out, "\nThis agent will help you book a doctor appointment.")
	fmt.Fprintln(s.out, "Just tell me what you need, and I'll gather any missing information.")
	fmt.Fprint(s.out, "\nType 'exit' to quit\n\n")
}

func (s *repl) goodbye() {
	fmt.Fprintf(s.out, "\nThank you for using %s. Goodbye!\n", appTitle)
}
