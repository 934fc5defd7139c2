package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"

	"github.com/bernardzulu23/phasesync/internal/phase"
)

// Coordinator defaults, used when the matching CoordinatorConfig field is zero.
const (
	defaultInterval       = 30 * time.Second
	defaultMaxAttempts    = 3
	defaultRetryBase      = time.Second
	defaultConflictWindow = 5 * time.Second
	defaultMaxHops        = 4

	idlePollInterval = 10 * time.Millisecond

	tracerName = "github.com/bernardzulu23/phasesync/internal/sync"
)

// Store is the persistence collaborator. Get returns nil, nil when nothing
// is stored for the key.
type Store interface {
	Get(ctx context.Context, userID string, key phase.Key) (*phase.Payload, error)
	Put(ctx context.Context, userID string, key phase.Key, p phase.Payload) error
}

// CoordinatorConfig holds the inputs for creating a Coordinator. Zero
// durations and counts fall back to defaults; nil tables fall back to the
// static tables in package phase and DefaultStrategies.
type CoordinatorConfig struct {
	Store      Store
	Logger     *slog.Logger
	Registerer prometheus.Registerer // nil registers on a private registry
	Tracer     trace.TracerProvider  // nil uses the global provider

	Interval       time.Duration // background drain period
	MaxAttempts    int
	RetryBase      time.Duration // backoff unit: delay = RetryBase * 2^attempts
	ConflictWindow time.Duration
	MaxHops        int // derivation depth bound

	Validators map[phase.Key]phase.Validator
	Rules      map[phase.Key][]phase.Rule
	Strategies map[phase.Key]Strategy

	NowFunc func() time.Time // injectable for deterministic tests
}

// Coordinator serializes writes from many callers into one ordered,
// validated, conflict-resolved stream of updates. All exported methods are
// safe for concurrent use.
type Coordinator struct {
	store          Store
	logger         *slog.Logger
	metrics        *metrics
	tracer         trace.Tracer
	interval       time.Duration
	maxAttempts    int
	retryBase      time.Duration
	conflictWindow time.Duration
	maxHops        int
	validators     map[phase.Key]phase.Validator
	rules          map[phase.Key][]phase.Rule
	strategies     map[phase.Key]Strategy
	nowFunc        func() time.Time
	afterFunc      func(time.Duration, func()) *time.Timer // injectable for testing

	mu           stdsync.Mutex
	queue        []*SyncItem
	inProgress   bool
	closed       bool
	started      bool
	listeners    map[phase.Key][]listenerEntry
	nextListener ListenerID
	lastSync     map[string]time.Time
	retries      map[*time.Timer]struct{} // pending backoff re-insertions
	failures     *failureTracker

	// ctx bounds background drains and the ticker; canceled by Close.
	ctx    context.Context
	cancel context.CancelFunc
	wg     stdsync.WaitGroup
}

// NewCoordinator validates cfg and returns an idle coordinator. Call Start
// to launch the background drain ticker and Close to tear it down.
func NewCoordinator(cfg *CoordinatorConfig) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("sync: coordinator requires a store")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m, err := newMetrics(cfg.Registerer)
	if err != nil {
		return nil, err
	}

	tp := cfg.Tracer
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Coordinator{
		store:          cfg.Store,
		logger:         logger,
		metrics:        m,
		tracer:         tp.Tracer(tracerName),
		interval:       orDuration(cfg.Interval, defaultInterval),
		maxAttempts:    orInt(cfg.MaxAttempts, defaultMaxAttempts),
		retryBase:      orDuration(cfg.RetryBase, defaultRetryBase),
		conflictWindow: orDuration(cfg.ConflictWindow, defaultConflictWindow),
		maxHops:        orInt(cfg.MaxHops, defaultMaxHops),
		validators:     cfg.Validators,
		rules:          cfg.Rules,
		strategies:     cfg.Strategies,
		nowFunc:        cfg.NowFunc,
		afterFunc:      time.AfterFunc,
		listeners:      make(map[phase.Key][]listenerEntry),
		lastSync:       make(map[string]time.Time),
		retries:        make(map[*time.Timer]struct{}),
		ctx:            ctx,
		cancel:         cancel,
	}

	if c.validators == nil {
		c.validators = phase.DefaultValidators()
	}

	if c.rules == nil {
		c.rules = phase.DefaultRules()
	}

	if c.strategies == nil {
		c.strategies = DefaultStrategies()
	}

	if c.nowFunc == nil {
		c.nowFunc = time.Now
	}

	c.failures = newFailureTracker(logger)
	c.failures.nowFunc = c.nowFunc

	return c, nil
}

// Start launches the background ticker that drains the queue every
// interval, guaranteeing eventual processing without a high-priority
// trigger. The ticker stops when ctx ends or Close is called. Calling Start
// more than once has no further effect.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.started {
		return
	}

	c.started = true
	c.wg.Add(1)

	go c.runTicker(ctx)

	c.logger.Info("sync coordinator started", slog.Duration("interval", c.interval))
}

func (c *Coordinator) runTicker(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.ProcessSyncQueue(c.ctx)
		}
	}
}

// Close tears the coordinator down: it stops the ticker, cancels every
// pending backoff re-insertion, and clears the queue, listeners and
// last-sync map. Close waits for the ticker and for drains the coordinator
// started itself; a ProcessSyncQueue call made directly by a caller is not
// waited for and finishes its current item on the caller's goroutine.
// Close is idempotent.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.closed = true

	for t := range c.retries {
		t.Stop()
	}

	dropped := len(c.queue)
	c.retries = make(map[*time.Timer]struct{})
	c.queue = nil
	c.listeners = make(map[phase.Key][]listenerEntry)
	c.lastSync = make(map[string]time.Time)
	c.metrics.queueLength.Set(0)
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	c.logger.Info("sync coordinator closed", slog.Int("discarded_items", dropped))

	return nil
}

// QueueSync validates payload against the validator registered for
// (p, dt), stamps it with the current time and queues it. Normal priority
// appends to the tail; high priority prepends to the head and, when no
// drain is active, starts one in the background. It returns the new item's
// ID, or an error wrapping ErrValidation when the write is rejected.
func (c *Coordinator) QueueSync(userID string, p phase.Phase, dt phase.DataType, payload phase.Payload, prio Priority) (string, error) {
	key, err := phase.NewKey(p, dt)
	if err != nil {
		return "", c.rejected(userID, phase.Key{Phase: p, DataType: dt}, err)
	}

	return c.queueItem(&SyncItem{
		UserID:   userID,
		Key:      key,
		Payload:  payload,
		Priority: prio,
	}, true)
}

// ForceSyncUser queues one high-priority refresh per data type for userID,
// across every phase or only p when non-empty, then drains the queue.
func (c *Coordinator) ForceSyncUser(ctx context.Context, userID string, p phase.Phase) error {
	phases := phase.Phases()

	if p != "" {
		if _, err := phase.ParsePhase(string(p)); err != nil {
			return c.rejected(userID, phase.Key{Phase: p}, err)
		}

		phases = []phase.Phase{p}
	}

	queued := 0

	for _, ph := range phases {
		for _, dt := range phase.DataTypes(ph) {
			_, err := c.queueItem(&SyncItem{
				UserID:   userID,
				Key:      phase.Key{Phase: ph, DataType: dt},
				Payload:  phase.Payload{ForceRefresh: true},
				Priority: PriorityHigh,
			}, false)
			if err != nil {
				return err
			}

			queued++
		}
	}

	c.logger.Info("forced refresh queued",
		slog.String("user_id", userID),
		slog.String("phase", string(p)),
		slog.Int("items", queued),
	)

	c.ProcessSyncQueue(ctx)

	return nil
}

// queueItem validates, stamps and enqueues it. kick controls whether a
// high-priority item may start a background drain.
func (c *Coordinator) queueItem(it *SyncItem, kick bool) (string, error) {
	it.UserID = normalizeUserID(it.UserID)
	if it.UserID == "" {
		return "", c.rejected(it.UserID, it.Key, fmt.Errorf("user id must not be empty"))
	}

	if it.Priority == "" {
		it.Priority = PriorityNormal
	}

	if it.Priority != PriorityNormal && it.Priority != PriorityHigh {
		return "", c.rejected(it.UserID, it.Key, fmt.Errorf("unknown priority %q", it.Priority))
	}

	if err := c.validate(it.Key, it.Payload); err != nil {
		return "", c.rejected(it.UserID, it.Key, err)
	}

	now := c.nowFunc()
	it.ID = uuid.NewString()
	it.Payload.Timestamp = now
	it.CreatedAt = now
	it.MaxAttempts = c.maxAttempts

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", ErrClosed
	}

	if it.Priority == PriorityHigh {
		c.queue = append([]*SyncItem{it}, c.queue...)
	} else {
		c.queue = append(c.queue, it)
	}

	c.metrics.queueLength.Set(float64(len(c.queue)))

	c.logger.Debug("sync item queued",
		slog.String("id", it.ID),
		slog.String("user_id", it.UserID),
		slog.String("key", it.Key.String()),
		slog.String("priority", string(it.Priority)),
		slog.Int("hops", it.Hops),
	)

	if kick && it.Priority == PriorityHigh && !c.inProgress {
		c.startDrainLocked()
	}

	return it.ID, nil
}

// validate applies the registered validator. A key without a validator
// accepts any payload. A refresh marker without data is not validated.
func (c *Coordinator) validate(key phase.Key, p phase.Payload) error {
	if p.ForceRefresh && p.Data == nil {
		return nil
	}

	if p.Data != nil && p.Data.Key() != key {
		return fmt.Errorf("payload variant %s does not match %s", p.Data.Key(), key)
	}

	v, ok := c.validators[key]
	if !ok {
		return nil
	}

	return v(p.Data)
}

func (c *Coordinator) rejected(userID string, key phase.Key, err error) error {
	c.metrics.validationFailures.Inc()
	c.logger.Warn("sync write rejected",
		slog.String("user_id", userID),
		slog.String("key", key.String()),
		slog.String("error", err.Error()),
	)

	return fmt.Errorf("%w: %s: %w", ErrValidation, key, err)
}

// startDrainLocked runs ProcessSyncQueue in the background. Caller holds mu
// and has checked that the coordinator is open.
func (c *Coordinator) startDrainLocked() {
	if c.closed {
		return
	}

	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		c.ProcessSyncQueue(c.ctx)
	}()
}

// GetSyncStats returns a snapshot of the coordinator's state.
func (c *Coordinator) GetSyncStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	last := make(map[string]time.Time, len(c.lastSync))
	for k, v := range c.lastSync {
		last[k] = v
	}

	listeners := 0
	for _, ls := range c.listeners {
		listeners += len(ls)
	}

	failing, dropped := c.failures.snapshot()

	return Stats{
		QueueLength:    len(c.queue),
		SyncInProgress: c.inProgress,
		LastSync:       last,
		ListenerCount:  listeners,
		PendingRetries: len(c.retries),
		FailingRecords: failing,
		DroppedRecords: dropped,
	}
}

// WaitIdle blocks until the queue is empty, no drain is running and no
// backoff re-insertion is pending, or until ctx ends.
func (c *Coordinator) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()

	for {
		c.mu.Lock()
		idle := len(c.queue) == 0 && !c.inProgress && len(c.retries) == 0
		c.mu.Unlock()

		if idle {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func normalizeUserID(id string) string {
	return norm.NFC.String(strings.TrimSpace(id))
}

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}

	return v
}

func orInt(v, def int) int {
	if v <= 0 {
		return def
	}

	return v
}
