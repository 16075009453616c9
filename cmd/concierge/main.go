// Command concierge runs the conversational memory engine as an interactive
// chat session: one client identity, one conversation, feedback by typing a
// bare score after a reply.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/roomieai/concierge-go/pkg/catalog"
	"github.com/roomieai/concierge-go/pkg/config"
	"github.com/roomieai/concierge-go/pkg/engine"
	"github.com/roomieai/concierge-go/pkg/llms"
	"github.com/roomieai/concierge-go/pkg/logging"
	"github.com/roomieai/concierge-go/pkg/metrics"
	"github.com/roomieai/concierge-go/pkg/store"
)

const defaultInstructions = "You are the concierge of a beachfront resort. " +
	"Answer warmly and concretely in the guest's language, using what you know about them."

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "concierge: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Local development keeps ANTHROPIC_API_KEY in a .env file.
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", "", "path to yaml config (defaults apply when empty)")
		clientID   = flag.String("client", "local-guest", "client identity for this session")
		backfill   = flag.String("backfill", "", "roll up one day (YYYY-MM-DD) and exit; with -backfill-to, the range start")
		backfillTo = flag.String("backfill-to", "", "inclusive end of the backfill range (YYYY-MM-DD)")
	)
	flag.Parse()

	if *backfillTo != "" && *backfill == "" {
		return fmt.Errorf("-backfill-to requires -backfill as the range start")
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	if err := setupLogging(cfg.Logging); err != nil {
		return err
	}
	logger := logging.GetLogger()

	if cfg.Store.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
			return fmt.Errorf("create store directory: %w", err)
		}
	}
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	if *backfill != "" {
		rollup := metrics.NewRollup(st)
		if *backfillTo != "" {
			from, err := time.Parse(metrics.DateFormat, *backfill)
			if err != nil {
				return fmt.Errorf("invalid -backfill date %q: %w", *backfill, err)
			}
			to, err := time.Parse(metrics.DateFormat, *backfillTo)
			if err != nil {
				return fmt.Errorf("invalid -backfill-to date %q: %w", *backfillTo, err)
			}
			return rollup.Backfill(context.Background(), from, to)
		}
		sample, err := rollup.Run(context.Background(), *backfill)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d conversations, avg satisfaction %.2f, %d successes, %d escalations\n",
			sample.Date, sample.TotalConversations, sample.AvgSatisfaction,
			sample.SuccessfulOutcomes, sample.Escalations)
		return nil
	}

	generator, err := llms.NewAnthropicGenerator(cfg.Generation)
	if err != nil {
		return err
	}

	instructions, err := config.LoadPersona(cfg.Persona)
	if err != nil {
		return err
	}
	if instructions == "" {
		instructions = defaultInstructions
	}

	params := engine.Params{
		Instructions:        instructions,
		HistoryLimit:        cfg.Engine.HistoryLimit,
		PatternCap:          cfg.Engine.PatternCap,
		TrustThreshold:      cfg.Engine.TrustThreshold,
		ReinforcementWeight: cfg.Engine.ReinforcementWeight,
		Scale:               engine.Scale{Min: cfg.Engine.ScaleMin, Max: cfg.Engine.ScaleMax},
		DefaultLanguage:     cfg.Engine.DefaultLanguage,
		GenerationTimeout:   cfg.Generation.Timeout,
	}
	if cfg.Catalog.Path != "" {
		cat, err := catalog.Load(cfg.Catalog.Path)
		if err != nil {
			return err
		}
		params.Recommender = cat
		logger.Info(context.Background(), "catalog loaded: %d listings", cat.Len())
	}
	orch := engine.NewOrchestrator(st, generator, params)

	scheduler, err := metrics.NewScheduler(metrics.NewRollup(st), "")
	if err != nil {
		return err
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return chatLoop(ctx, orch, *clientID)
}

func setupLogging(cfg config.LoggingConfig) error {
	severity := logging.ParseSeverity(cfg.Level)
	outputs := []logging.Output{logging.NewConsoleOutput(true)}
	if cfg.FilePath != "" {
		fileOut, err := logging.NewFileOutput(cfg.FilePath)
		if err != nil {
			return err
		}
		outputs = append(outputs, fileOut)
	}
	logging.SetLogger(logging.NewLogger(logging.Config{Severity: severity, Outputs: outputs}))
	return nil
}

// chatLoop reads messages from stdin. A bare 1-5 after a reply scores the
// previous turn; anything else is a new message.
func chatLoop(ctx context.Context, orch *engine.Orchestrator, clientID string) error {
	fmt.Printf("Chatting as %q. Reply with a bare 1-5 to rate the previous answer. Ctrl-D to quit.\n", clientID)

	var lastTurnID int64
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if score, err := strconv.ParseFloat(line, 64); err == nil && len(line) == 1 && lastTurnID != 0 {
			if err := orch.RecordFeedback(ctx, clientID, lastTurnID, score); err != nil {
				fmt.Printf("could not record feedback: %v\n", err)
				continue
			}
			fmt.Println("merci, noted.")
			continue
		}

		res, err := orch.HandleTurn(ctx, clientID, line)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		fmt.Println(res.Response)
		if res.Persisted {
			lastTurnID = res.TurnID
		} else {
			lastTurnID = 0
			fmt.Println("(this exchange could not be saved)")
		}
	}
}
