package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/scoutlabs/cryptoscout/internal/dedup"
	"github.com/scoutlabs/cryptoscout/internal/identity"
	"github.com/scoutlabs/cryptoscout/internal/models"
	"github.com/scoutlabs/cryptoscout/internal/retry"
)

// State is the workflow step currently executing. Transitions are strictly
// sequential within a run; Shutdown is terminal.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateDeduping
	StateClassifying
	StateFiltering
	StateSending
	StateRecording
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateDeduping:
		return "deduping"
	case StateClassifying:
		return "classifying"
	case StateFiltering:
		return "filtering"
	case StateSending:
		return "sending"
	case StateRecording:
		return "recording"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// ErrShutdown is returned once the consecutive-error ceiling has been reached.
// It is the only condition under which the pipeline stops scheduling itself.
var ErrShutdown = errors.New("pipeline shut down after repeated failures")

type Classifier interface {
	AnalyzeBatch(ctx context.Context, batch []models.NewsItem) ([]models.AnalyzedItem, error)
}

type Sender interface {
	SendOpportunity(ctx context.Context, item models.AnalyzedItem) error
}

// HistoryStore is the subset of the history store the pipeline drives.
type HistoryStore interface {
	Load()
	IsKnown(id string) bool
	Record(id string, at time.Time)
	Save() error
}

type Options struct {
	Sources    []models.NewsSource
	Classifier Classifier
	Sender     Sender
	Store      HistoryStore

	FetchLimit           int
	BatchSize            int
	RunInterval          time.Duration
	RetryAttempts        int
	RetryBaseDelay       time.Duration
	MaxConsecutiveErrors int

	// Quiet window by local hour, end exclusive; -1/-1 disables it.
	QuietHoursStart int
	QuietHoursEnd   int

	// Now is the clock; nil means time.Now. Tests inject a fixed clock.
	Now func() time.Time
}

type Pipeline struct {
	opts Options

	mu                sync.Mutex
	state             State
	consecutiveErrors int
}

func New(opts Options) *Pipeline {
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = 10
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.RunInterval <= 0 {
		opts.RunInterval = time.Hour
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = retry.DefaultAttempts
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = retry.DefaultBaseDelay
	}
	if opts.MaxConsecutiveErrors <= 0 {
		opts.MaxConsecutiveErrors = 10
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Pipeline{opts: opts}
}

// Run loads the history, runs the workflow once immediately, then on every
// tick of the configured interval. Iterations are strictly sequential; a tick
// arriving mid-run is absorbed by the ticker. Run returns ErrShutdown when the
// consecutive-error ceiling is reached, or nil when ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.opts.Store.Load()

	if err := p.Trigger(ctx); errors.Is(err, ErrShutdown) {
		return err
	}

	ticker := time.NewTicker(p.opts.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.Trigger(ctx); errors.Is(err, ErrShutdown) {
				return err
			}
		}
	}
}

// Trigger executes one scheduled run. After shutdown it refuses to run and
// returns ErrShutdown. A run inside the quiet window is skipped without
// touching the error counter. A run-level failure is logged, counted, and
// absorbed; reaching the ceiling transitions to the terminal Shutdown state.
func (p *Pipeline) Trigger(ctx context.Context) error {
	p.mu.Lock()
	if p.state == StateShutdown {
		p.mu.Unlock()
		return ErrShutdown
	}
	p.mu.Unlock()

	now := p.opts.Now()
	if p.inQuietWindow(now) {
		log.Info("inside quiet window, skipping run", "hour", now.Hour())
		return nil
	}

	err := p.runWorkflow(ctx)
	if ctx.Err() != nil {
		// Cancellation is not a run failure.
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.consecutiveErrors++
		log.Error("workflow run failed",
			"step", p.state, "consecutive_errors", p.consecutiveErrors,
			"ceiling", p.opts.MaxConsecutiveErrors, "err", err)

		if p.consecutiveErrors >= p.opts.MaxConsecutiveErrors {
			p.state = StateShutdown
			log.Error("consecutive error ceiling reached, pipeline will stop scheduling",
				"failures", p.consecutiveErrors)
			return ErrShutdown
		}
		p.state = StateIdle
		return err
	}

	p.consecutiveErrors = 0
	p.state = StateIdle
	return nil
}

func (p *Pipeline) runWorkflow(ctx context.Context) error {
	start := p.opts.Now()
	log.Info("starting workflow run")

	p.setState(StateFetching)
	items := p.fetchAll(ctx)
	if len(items) == 0 {
		log.Info("no items collected, nothing to do")
		return nil
	}
	log.Info("collected items", "count", len(items))

	p.setState(StateDeduping)
	fresh, duplicates := dedup.Partition(items, p.opts.Store)
	log.Info("deduplicated batch", "new", len(fresh), "duplicates", duplicates)
	if len(fresh) == 0 {
		return nil
	}

	p.setState(StateClassifying)
	analyzed, err := p.classifyAll(ctx, fresh)
	if err != nil {
		return fmt.Errorf("classifying items: %w", err)
	}

	p.setState(StateFiltering)
	var opportunities []models.AnalyzedItem
	for _, item := range analyzed {
		if item.IsOpportunity {
			opportunities = append(opportunities, item)
		}
	}
	log.Info("filtered opportunities", "opportunities", len(opportunities), "analyzed", len(analyzed))

	p.setState(StateSending)
	report := p.sendAll(ctx, opportunities)
	if report.Failed() > 0 {
		log.Warn("some opportunities failed to send", "sent", report.Sent(), "failed", report.Failed())
		for _, res := range report.Results {
			if res.Err != nil {
				log.Warn("send failed", "title", res.Title, "err", res.Err)
			}
		}
	}

	// Every item that reached the classifier is recorded, opportunity or not,
	// so it is never analyzed again.
	p.setState(StateRecording)
	recordedAt := p.opts.Now()
	for _, item := range analyzed {
		p.opts.Store.Record(identity.Compute(item.Title, item.Link), recordedAt)
	}
	if err := p.opts.Store.Save(); err != nil {
		// Losing one run's worth of history is better than failing the run;
		// the next successful save persists the accumulated state.
		log.Warn("could not persist history, continuing with in-memory state", "err", err)
	}

	log.Info("workflow run complete",
		"analyzed", len(analyzed), "opportunities", len(opportunities),
		"sent", report.Sent(), "duration", time.Since(start))
	return nil
}

// fetchAll fans out to every source concurrently. A failing source is logged
// and skipped; partial results are expected.
func (p *Pipeline) fetchAll(ctx context.Context) []models.NewsItem {
	var (
		all []models.NewsItem
		wg  sync.WaitGroup
		mu  sync.Mutex
	)

	for _, source := range p.opts.Sources {
		wg.Add(1)
		go func(src models.NewsSource) {
			defer wg.Done()

			items, err := src.FetchItems(ctx, p.opts.FetchLimit)
			if err != nil {
				log.Warn("source fetch failed", "source", src.GetName(), "err", err)
				return
			}

			mu.Lock()
			all = append(all, items...)
			mu.Unlock()
		}(source)
	}

	wg.Wait()
	return all
}

// classifyAll sends items to the classifier in bounded batches, each wrapped
// in the retry policy. A batch that still fails after retries fails the run.
func (p *Pipeline) classifyAll(ctx context.Context, items []models.NewsItem) ([]models.AnalyzedItem, error) {
	var analyzed []models.AnalyzedItem

	for start := 0; start < len(items); start += p.opts.BatchSize {
		end := start + p.opts.BatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		results, err := retry.Do(ctx, "classify",
			func(ctx context.Context) ([]models.AnalyzedItem, error) {
				return p.opts.Classifier.AnalyzeBatch(ctx, batch)
			},
			retry.WithAttempts(p.opts.RetryAttempts),
			retry.WithBaseDelay(p.opts.RetryBaseDelay))
		if err != nil {
			return nil, err
		}
		analyzed = append(analyzed, results...)
	}

	return analyzed, nil
}

// sendAll delivers each opportunity through the retry policy and accumulates
// per-item outcomes. One failed message never blocks the rest.
func (p *Pipeline) sendAll(ctx context.Context, opportunities []models.AnalyzedItem) *models.SendReport {
	report := &models.SendReport{}

	for _, opp := range opportunities {
		item := opp
		_, err := retry.Do(ctx, "send",
			func(ctx context.Context) (struct{}, error) {
				return struct{}{}, p.opts.Sender.SendOpportunity(ctx, item)
			},
			retry.WithAttempts(p.opts.RetryAttempts),
			retry.WithBaseDelay(p.opts.RetryBaseDelay))
		report.Add(item.Title, err)
	}

	return report
}

func (p *Pipeline) inQuietWindow(now time.Time) bool {
	start, end := p.opts.QuietHoursStart, p.opts.QuietHoursEnd
	if start < 0 || end < 0 || start == end {
		return false
	}

	h := now.Hour()
	if start < end {
		return h >= start && h < end
	}
	// Window wraps past midnight.
	return h >= start || h < end
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	log.Debug("workflow step", "state", s)
}

func (p *Pipeline) ConsecutiveErrors() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consecutiveErrors
}

func (p *Pipeline) IsShutdown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StateShutdown
}
