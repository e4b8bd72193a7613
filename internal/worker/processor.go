package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/feels/internal/commentary"
	"github.com/thebtf/feels/internal/emotion"
	"github.com/thebtf/feels/pkg/models"
)

// DefaultPollInterval is how long the processor sleeps on an empty queue.
const DefaultPollInterval = 50 * time.Millisecond

// ThoughtStore is the persistence the processor and control API need.
type ThoughtStore interface {
	InsertThought(ctx context.Context, t *models.Thought) (int64, error)
	SessionStats(ctx context.Context, sessionID string) (*models.SessionStats, error)
	ListSessions(ctx context.Context, limit int) ([]*models.Session, error)
	RecentThoughts(ctx context.Context, sessionID string, limit int) ([]*models.Thought, error)
	LatestSessionID(ctx context.Context) (string, error)
	StartSession(ctx context.Context, sessionID, projectDir string, at time.Time) error
	EndSession(ctx context.Context, sessionID string, at time.Time) error
	Purge(ctx context.Context) error
}

// ReactionFetcher resolves a search phrase to a reaction.
type ReactionFetcher interface {
	Fetch(ctx context.Context, term string) models.Reaction
}

// Broadcaster fans messages out to viewers.
type Broadcaster interface {
	Broadcast(msg any) int
	ClientCount() int
}

// ProcessorConfig wires a Processor.
type ProcessorConfig struct {
	Queue        *Queue
	Classifier   *emotion.Classifier
	Narrator     *emotion.Narrator
	Fetcher      ReactionFetcher
	Commentator  commentary.Commentator // nil disables commentary
	Store        ThoughtStore
	Hub          Broadcaster
	PollInterval time.Duration
}

// Processor drains the queue: classify, fetch a reaction, comment, persist, broadcast.
type Processor struct {
	queue        *Queue
	classifier   *emotion.Classifier
	narrator     *emotion.Narrator
	fetcher      ReactionFetcher
	commentator  commentary.Commentator
	store        ThoughtStore
	hub          Broadcaster
	pollInterval time.Duration

	processed atomic.Int64
	failed    atomic.Int64
}

// NewProcessor creates a processor from cfg.
func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Queue == nil {
		cfg.Queue = NewQueue()
	}
	if cfg.Classifier == nil {
		cfg.Classifier = emotion.NewClassifier(nil, nil, 0)
	}
	if cfg.Narrator == nil {
		cfg.Narrator = emotion.NewNarrator(nil, nil, nil)
	}
	return &Processor{
		queue:        cfg.Queue,
		classifier:   cfg.Classifier,
		narrator:     cfg.Narrator,
		fetcher:      cfg.Fetcher,
		commentator:  cfg.Commentator,
		store:        cfg.Store,
		hub:          cfg.Hub,
		pollInterval: cfg.PollInterval,
	}
}

// Run drains the queue until ctx is cancelled. A failing item is logged and
// skipped.
func (p *Processor) Run(ctx context.Context) {
	log.Info().Dur("poll", p.pollInterval).Msg("Processor started")
	defer log.Info().Msg("Processor stopped")

	for {
		if ctx.Err() != nil {
			return
		}
		ev, ok := p.queue.TryPop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.pollInterval):
			}
			continue
		}
		p.safeProcess(ctx, ev)
	}
}

// safeProcess runs Process with panic recovery.
func (p *Processor) safeProcess(ctx context.Context, ev *models.RawEvent) {
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			log.Error().
				Interface("panic", r).
				Str("tool", ev.ToolName).
				Str("session", ev.SessionID).
				Msg("Panic while processing event")
		}
	}()

	if _, err := p.Process(ctx, ev); err != nil {
		p.failed.Add(1)
		log.Error().Err(err).
			Str("tool", ev.ToolName).
			Str("session", ev.SessionID).
			Msg("Failed to process event")
	}
}

// Process turns one raw event into a broadcast thought and returns it.
// A store failure still broadcasts the thought, with id 0.
func (p *Processor) Process(ctx context.Context, ev *models.RawEvent) (*models.Thought, error) {
	if ev == nil {
		return nil, errors.New("nil event")
	}

	p.recordLifecycle(ctx, ev)

	res := p.classifier.Classify(ev)
	classified := &models.ClassifiedEvent{
		RawEvent:   *ev,
		Emotion:    res.Emotion,
		SearchTerm: res.SearchTerm,
		Intensity:  res.Intensity,
	}
	p.narrator.Annotate(ev, classified)
	if classified.ContextUsage == nil {
		classified.ContextUsage = ev.ContextUsage
	}

	reaction := models.FallbackReaction(res.SearchTerm)
	if p.fetcher != nil {
		reaction = p.fetcher.Fetch(ctx, res.SearchTerm)
	}

	if p.commentator != nil && commentary.Eligible(ev) {
		remark, err := p.commentator.Comment(ctx, ev)
		if err != nil {
			log.Debug().Err(err).Msg("Commentary unavailable")
		} else {
			classified.Commentary = remark
		}
	}

	thought := models.NewThought(classified, reaction)

	if p.store != nil {
		if _, err := p.store.InsertThought(ctx, thought); err != nil {
			thought.ID = 0
			log.Warn().Err(err).Str("session", thought.SessionID).Msg("Failed to persist thought, broadcasting anyway")
		}
	}

	if p.hub != nil {
		p.hub.Broadcast(models.NewMessage(models.MessageThought, thought))
		if err := p.broadcastStats(ctx, thought.SessionID); err != nil {
			log.Warn().Err(err).Msg("Failed to broadcast stats")
		}
	}

	p.processed.Add(1)
	log.Debug().
		Int64("id", thought.ID).
		Str("tool", thought.ToolName).
		Str("emotion", thought.Emotion).
		Int("intensity", thought.Intensity).
		Msg("Processed event")
	return thought, nil
}

func (p *Processor) recordLifecycle(ctx context.Context, ev *models.RawEvent) {
	if p.store == nil {
		return
	}
	at, err := time.Parse(time.RFC3339, ev.Timestamp)
	if err != nil {
		at = time.Now()
	}

	switch ev.Source {
	case models.SourceSessionStart:
		err = p.store.StartSession(ctx, ev.SessionID, ev.ProjectDir, at)
	case models.SourceSessionEnd:
		err = p.store.EndSession(ctx, ev.SessionID, at)
	default:
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("session", ev.SessionID).Str("source", string(ev.Source)).Msg("Failed to record session lifecycle")
	}
}

func (p *Processor) broadcastStats(ctx context.Context, sessionID string) error {
	if p.store == nil {
		return nil
	}
	stats, err := p.store.SessionStats(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("session stats: %w", err)
	}
	p.hub.Broadcast(models.NewMessage(models.MessageStats, stats))
	return nil
}

// Processed returns the number of events handled.
func (p *Processor) Processed() int64 {
	return p.processed.Load()
}

// Failed returns the number of events that errored or panicked.
func (p *Processor) Failed() int64 {
	return p.failed.Load()
}
