package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/roomieai/concierge-go/pkg/core"
	"github.com/roomieai/concierge-go/pkg/errors"
	"github.com/roomieai/concierge-go/pkg/logging"
)

// Params configures the orchestrator. Zero values fall back to the engine
// defaults; Recommender is optional.
type Params struct {
	Instructions        string
	HistoryLimit        int
	PatternCap          int
	TrustThreshold      float64
	ReinforcementWeight float64
	Scale               Scale
	DefaultLanguage     string
	GenerationTimeout   time.Duration
	Recommender         Recommender
}

// TurnResult is what a handled turn yields. Persisted reports whether the
// turn reached durable storage: generation can succeed while persistence
// fails, and the guest still gets their answer.
type TurnResult struct {
	TurnID    int64
	TraceID   string
	Response  string
	Persisted bool
}

// Orchestrator runs the full turn pipeline for one inbound message: gather
// profile, history and trusted patterns, assemble the prompt, call the
// generator, persist the turn, then update the profile. Turns for the same
// client are serialized; distinct clients proceed in parallel.
type Orchestrator struct {
	store       Store
	generator   core.Generator
	recommender Recommender

	profiles *ProfileManager
	history  *HistoryWindow
	patterns *PatternStore
	feedback *FeedbackLoop
	detector *LanguageDetector
	locks    *clientLocks

	instructions string
	patternCap   int
	genTimeout   time.Duration
}

// NewOrchestrator wires the engine components around a store and generator.
func NewOrchestrator(store Store, generator core.Generator, params Params) *Orchestrator {
	patternCap := params.PatternCap
	if patternCap <= 0 {
		patternCap = DefaultPatternCap
	}
	scale := params.Scale.orDefault()
	return &Orchestrator{
		store:        store,
		generator:    generator,
		recommender:  params.Recommender,
		profiles:     NewProfileManager(store),
		history:      NewHistoryWindow(store, params.HistoryLimit),
		patterns:     NewPatternStore(store, params.TrustThreshold, params.ReinforcementWeight, scale),
		feedback:     NewFeedbackLoop(store, scale, params.ReinforcementWeight),
		detector:     NewLanguageDetector(params.DefaultLanguage),
		locks:        newClientLocks(),
		instructions: params.Instructions,
		patternCap:   patternCap,
		genTimeout:   params.GenerationTimeout,
	}
}

// HandleTurn processes one inbound message, waiting its turn behind any
// in-flight turn for the same client.
func (o *Orchestrator) HandleTurn(ctx context.Context, clientID, message string) (*TurnResult, error) {
	if err := validateTurnInput(clientID, message); err != nil {
		return nil, err
	}
	release, err := o.locks.acquire(ctx, clientID)
	if err != nil {
		return nil, err
	}
	defer release()
	return o.handleLocked(ctx, clientID, message)
}

// TryHandleTurn processes one inbound message, but rejects with ClientBusy
// when a turn for the same client is already in flight instead of queueing.
func (o *Orchestrator) TryHandleTurn(ctx context.Context, clientID, message string) (*TurnResult, error) {
	if err := validateTurnInput(clientID, message); err != nil {
		return nil, err
	}
	release, ok := o.locks.tryAcquire(clientID)
	if !ok {
		return nil, errors.WithFields(
			errors.New(errors.ClientBusy, "a turn is already in flight for this client"),
			errors.Fields{"client_id": clientID},
		)
	}
	defer release()
	return o.handleLocked(ctx, clientID, message)
}

// RecordFeedback applies a satisfaction score to a previously handled turn.
// The store applies the score, rolling average and pattern reinforcement in
// one transaction, so no client lock is needed here.
func (o *Orchestrator) RecordFeedback(ctx context.Context, clientID string, turnID int64, score float64) error {
	ctx = logging.WithClientID(ctx, clientID)
	return o.feedback.RecordFeedback(ctx, clientID, turnID, score)
}

func validateTurnInput(clientID, message string) error {
	if clientID == "" {
		return errors.New(errors.InvalidInput, "client id is required")
	}
	if message == "" {
		return errors.New(errors.InvalidInput, "message is required")
	}
	return nil
}

func (o *Orchestrator) handleLocked(ctx context.Context, clientID, message string) (*TurnResult, error) {
	ctx = logging.WithClientID(ctx, clientID)
	logger := logging.GetLogger()
	traceID := uuid.NewString()

	// The three context reads are independent; any failure fails the turn
	// closed rather than answering with partial context.
	var (
		profile  *core.ClientProfile
		window   []core.ConversationTurn
		patterns []core.LearnedPattern
	)
	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		var err error
		profile, err = o.profiles.Get(ctx, clientID)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		window, err = o.history.Window(ctx, clientID, 0)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		patterns, err = o.patterns.ListTrusted(ctx)
		return err
	})
	if err := p.Wait(); err != nil {
		return nil, err
	}

	intent := ClassifyIntent(message)

	var suggestions []string
	if intent == IntentRecommendation && o.recommender != nil {
		sugg, err := o.recommender.Suggest(ctx, profile, message)
		if err != nil {
			// The catalog is an enrichment; a turn still answers without it.
			logger.Warn(ctx, "catalog lookup failed: %v", err)
		} else {
			suggestions = sugg
		}
	}

	prompt := Assemble(AssembleRequest{
		Instructions: o.instructions,
		TraceID:      traceID,
		Profile:      profile,
		Patterns:     patterns,
		PatternCap:   o.patternCap,
		Window:       window,
		Suggestions:  suggestions,
		Intent:       intent,
		NewMessage:   message,
	})

	genCtx := ctx
	if o.genTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, o.genTimeout)
		defer cancel()
	}
	start := time.Now()
	result, err := o.generator.Generate(genCtx, prompt)
	if err != nil {
		return nil, err
	}
	latency := time.Since(start).Milliseconds()

	res := &TurnResult{TraceID: traceID, Response: result.Content}

	turn := &core.ConversationTurn{
		ClientID:          clientID,
		MessageText:       message,
		ResponseText:      result.Content,
		ResponseLatencyMs: latency,
		Snapshot:          prompt.Snapshot,
	}
	if _, err := o.store.InsertTurn(ctx, turn); err != nil {
		// The guest already has their answer; report the durability gap
		// and return the response anyway.
		logger.Error(ctx, "failed to persist turn for client %s: %v", clientID, err)
		return res, nil
	}
	res.TurnID = turn.ID
	res.Persisted = true
	ctx = logging.WithTurnID(ctx, turn.ID)

	if err := o.profiles.Touch(ctx, clientID); err != nil {
		logger.Error(ctx, "failed to record interaction for client %s: %v", clientID, err)
	}
	if update := o.inferProfileUpdate(profile, message); !update.Empty() {
		if err := o.profiles.ApplyUpdate(ctx, clientID, update); err != nil {
			logger.Error(ctx, "failed to apply inferred profile update for client %s: %v", clientID, err)
		}
	}

	logger.TurnCompleted(ctx, latency, result.Usage)
	return res, nil
}

// inferProfileUpdate derives profile fields from the inbound message. Today
// that is the language, set once when the profile has none; later detections
// never overwrite an established preference.
func (o *Orchestrator) inferProfileUpdate(profile *core.ClientProfile, message string) core.ProfileUpdate {
	var update core.ProfileUpdate
	if profile == nil || profile.Language == "" {
		update.Language = core.String(o.detector.Detect(message))
	}
	return update
}
