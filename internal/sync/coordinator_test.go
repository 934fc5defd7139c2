package sync

import (
	"context"
	"errors"
	"log/slog"
	stdsync "sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bernardzulu23/phasesync/internal/phase"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

type putCall struct {
	userID  string
	key     phase.Key
	payload phase.Payload
}

// fakeStore records every Put and can be told to fail them. When putGate is
// set, each Put signals putEntered and then waits for putGate to close.
type fakeStore struct {
	mu     stdsync.Mutex
	data   map[string]phase.Payload
	puts   []putCall
	putErr error

	putGate    chan struct{}
	putEntered chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]phase.Payload)}
}

func (s *fakeStore) Get(_ context.Context, userID string, key phase.Key) (*phase.Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.data[recordKey(userID, key)]
	if !ok {
		return nil, nil
	}

	return &p, nil
}

func (s *fakeStore) Put(_ context.Context, userID string, key phase.Key, p phase.Payload) error {
	if s.putGate != nil {
		select {
		case s.putEntered <- struct{}{}:
		default:
		}

		<-s.putGate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.puts = append(s.puts, putCall{userID: userID, key: key, payload: p})

	if s.putErr != nil {
		return s.putErr
	}

	s.data[recordKey(userID, key)] = p

	return nil
}

func (s *fakeStore) seed(userID string, key phase.Key, p phase.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[recordKey(userID, key)] = p
}

func (s *fakeStore) putsFor(key phase.Key) []putCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []putCall

	for _, p := range s.puts {
		if p.key == key {
			out = append(out, p)
		}
	}

	return out
}

func (s *fakeStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.puts)
}

func newTestCoordinator(t *testing.T, st Store, opts ...func(*CoordinatorConfig)) *Coordinator {
	t.Helper()

	cfg := &CoordinatorConfig{
		Store:      st,
		Logger:     testLogger(t),
		Registerer: prometheus.NewRegistry(),
		RetryBase:  time.Millisecond,
	}

	for _, o := range opts {
		o(cfg)
	}

	c, err := NewCoordinator(cfg)
	require.NoError(t, err)

	t.Cleanup(func() { c.Close() })

	return c
}

func waitIdle(t *testing.T, c *Coordinator) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.WaitIdle(ctx))
}

// collector gathers items delivered to a listener.
type collector struct {
	mu    stdsync.Mutex
	items []SyncItem
}

func (cl *collector) listen(it SyncItem) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	cl.items = append(cl.items, it)
}

func (cl *collector) got() []SyncItem {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	return append([]SyncItem(nil), cl.items...)
}

func gamification(points, level int) phase.Payload {
	return phase.Payload{Data: phase.Gamification{
		Points:       points,
		Level:        level,
		Achievements: []string{},
		Streaks:      map[string]int{},
	}}
}

func TestNewCoordinator_RequiresStore(t *testing.T) {
	t.Parallel()

	_, err := NewCoordinator(&CoordinatorConfig{})
	require.Error(t, err)
}

func TestQueueSync_ListenerReceivesCompletedItem(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	c := newTestCoordinator(t, st)

	var cl collector
	c.AddSyncListener(phase.Analytics, phase.TypeGamification, cl.listen)

	id, err := c.QueueSync("u1", phase.Analytics, phase.TypeGamification, gamification(50, 2), PriorityNormal)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, c.GetSyncStats().QueueLength)

	c.ProcessSyncQueue(context.Background())

	items := cl.got()
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)
	assert.Equal(t, "u1", items[0].UserID)
	assert.False(t, items[0].Payload.Timestamp.IsZero(), "payload is stamped at queue time")

	puts := st.putsFor(phase.Gamification{}.Key())
	require.Len(t, puts, 1)
	assert.Equal(t, gamification(50, 2).Data, puts[0].payload.Data)
}

func TestQueueSync_ValidationFailureLeavesQueueUnchanged(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := newTestCoordinator(t, newFakeStore(), func(cfg *CoordinatorConfig) { cfg.Registerer = reg })

	_, err := c.QueueSync("u1", phase.Analytics, phase.TypeGamification, gamification(10, 1), PriorityNormal)
	require.NoError(t, err)

	_, err = c.QueueSync("u1", phase.Analytics, phase.TypeGamification, gamification(-5, 1), PriorityNormal)
	require.ErrorIs(t, err, ErrValidation)

	_, err = c.QueueSync("u1", phase.Analytics, phase.TypeGamification, phase.Payload{}, PriorityHigh)
	require.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, 1, c.GetSyncStats().QueueLength)
	assert.InDelta(t, 2.0, testutil.ToFloat64(c.metrics.validationFailures), 0)
}

func TestQueueSync_RejectsUnknownKeyAndMismatchedVariant(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator(t, newFakeStore())

	_, err := c.QueueSync("u1", "PHASE_9", phase.TypeGamification, gamification(1, 1), PriorityNormal)
	require.ErrorIs(t, err, ErrValidation)

	_, err = c.QueueSync("u1", phase.Wellbeing, phase.TypeHealth, gamification(1, 1), PriorityNormal)
	require.ErrorIs(t, err, ErrValidation)

	_, err = c.QueueSync("  ", phase.Analytics, phase.TypeGamification, gamification(1, 1), PriorityNormal)
	require.ErrorIs(t, err, ErrValidation)

	_, err = c.QueueSync("u1", phase.Analytics, phase.TypeGamification, gamification(1, 1), Priority("urgent"))
	require.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, 0, c.GetSyncStats().QueueLength)
}

func TestQueueSync_NoValidatorMeansValid(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	c := newTestCoordinator(t, st, func(cfg *CoordinatorConfig) {
		cfg.Validators = map[phase.Key]phase.Validator{}
		cfg.Rules = map[phase.Key][]phase.Rule{}
	})

	// Negative points fail the registered validator but nothing is registered.
	_, err := c.QueueSync("u1", phase.Analytics, phase.TypeGamification, gamification(-5, 0), PriorityNormal)
	require.NoError(t, err)

	c.ProcessSyncQueue(context.Background())
	assert.Equal(t, 1, st.putCount())
}

func TestQueueSync_AfterClose(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator(t, newFakeStore())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "Close is idempotent")

	_, err := c.QueueSync("u1", phase.Analytics, phase.TypeGamification, gamification(1, 1), PriorityNormal)
	require.ErrorIs(t, err, ErrClosed)
}

func TestQueueSync_NormalizesUserID(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator(t, newFakeStore())

	// "cafe" + combining acute accent normalizes to the precomposed form.
	_, err := c.QueueSync("cafe\u0301", phase.Wellbeing, phase.TypeHealth,
		phase.Payload{Data: phase.Health{SleepHours: 8}}, PriorityNormal)
	require.NoError(t, err)

	c.ProcessSyncQueue(context.Background())

	_, ok := c.GetSyncStats().LastSync["caf\u00e9:PHASE_4:health"]
	assert.True(t, ok)
}

func TestProcessSyncQueue_HighPriorityFirst(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	c := newTestCoordinator(t, st)

	health := phase.Payload{Data: phase.Health{SleepHours: 7, ActivityMinutes: 30}}

	_, err := c.QueueSync("normal-1", phase.Wellbeing, phase.TypeHealth, health, PriorityNormal)
	require.NoError(t, err)
	_, err = c.QueueSync("normal-2", phase.Wellbeing, phase.TypeHealth, health, PriorityNormal)
	require.NoError(t, err)

	// A high-priority write starts a drain on its own.
	_, err = c.QueueSync("urgent", phase.Wellbeing, phase.TypeHealth, health, PriorityHigh)
	require.NoError(t, err)

	waitIdle(t, c)

	puts := st.putsFor(phase.Health{}.Key())
	require.Len(t, puts, 3)
	assert.Equal(t, "urgent", puts[0].userID)
	assert.Equal(t, "normal-1", puts[1].userID)
	assert.Equal(t, "normal-2", puts[2].userID)
}

func TestProcessSyncQueue_ConflictResolvedOnce(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := newFakeStore()
	c := newTestCoordinator(t, st, func(cfg *CoordinatorConfig) {
		cfg.NowFunc = func() time.Time { return now }
		cfg.Rules = map[phase.Key][]phase.Rule{}
	})

	scored := func(points int, score float64) phase.Payload {
		p := gamification(points, 1)
		g := p.Data.(phase.Gamification)
		g.Score = score
		p.Data = g

		return p
	}

	_, err := c.QueueSync("u1", phase.Analytics, phase.TypeGamification, scored(1, 10), PriorityNormal)
	require.NoError(t, err)
	_, err = c.QueueSync("u1", phase.Analytics, phase.TypeGamification, scored(100, 5), PriorityNormal)
	require.NoError(t, err)

	c.ProcessSyncQueue(context.Background())

	puts := st.putsFor(phase.Gamification{}.Key())
	require.Len(t, puts, 2)

	// The second write lands inside the window. Score, not points, decides,
	// so the stored score of 10 wins over the incoming 5.
	kept := puts[1].payload.Data.(phase.Gamification)
	assert.InDelta(t, 10.0, kept.Score, 0)
	assert.Equal(t, 1, kept.Points)
	assert.InDelta(t, 1.0, testutil.ToFloat64(c.metrics.conflicts.WithLabelValues("score")), 0)
}

func TestProcessSyncQueue_OutsideWindowIsNotConflict(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := newFakeStore()
	st.seed("u1", phase.Gamification{}.Key(), phase.Payload{
		Timestamp: now.Add(-time.Minute),
		Data:      gamification(100, 1).Data,
	})

	c := newTestCoordinator(t, st, func(cfg *CoordinatorConfig) {
		cfg.NowFunc = func() time.Time { return now }
		cfg.Rules = map[phase.Key][]phase.Rule{}
	})

	_, err := c.QueueSync("u1", phase.Analytics, phase.TypeGamification, gamification(1, 1), PriorityNormal)
	require.NoError(t, err)

	c.ProcessSyncQueue(context.Background())

	puts := st.putsFor(phase.Gamification{}.Key())
	require.Len(t, puts, 1)
	assert.Equal(t, 1, puts[0].payload.Data.(phase.Gamification).Points)
}

func TestProcessSyncQueue_CrossPhasePropagation(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	c := newTestCoordinator(t, st)

	var cl collector
	c.AddSyncListener(phase.Wellbeing, phase.TypeWellbeing, cl.listen)

	_, err := c.QueueSync("u1", phase.Analytics, phase.TypeGamification, gamification(50, 2), PriorityNormal)
	require.NoError(t, err)

	c.ProcessSyncQueue(context.Background())

	items := cl.got()
	require.Len(t, items, 1)
	assert.Equal(t, "u1", items[0].UserID)
	assert.Equal(t, 1, items[0].Hops)
	assert.Equal(t, []phase.Key{phase.Gamification{}.Key()}, items[0].Trail)

	wb, ok := items[0].Payload.Data.(phase.WellbeingData)
	require.True(t, ok)
	assert.InDelta(t, 60.0, wb.Score, 0)
	assert.Equal(t, "gamification", wb.Source)
	assert.InDelta(t, 1.0, testutil.ToFloat64(c.metrics.propagations), 0)
}

func TestProcessSyncQueue_CycleGuard(t *testing.T) {
	t.Parallel()

	messages := phase.Messages{}.Key()
	notifications := phase.Notifications{}.Key()

	rules := map[phase.Key][]phase.Rule{
		messages: {{
			Source: messages,
			Target: notifications,
			Derive: func(d phase.Data) (phase.Data, bool) {
				m := d.(phase.Messages)
				return phase.Notifications{Items: []phase.Notification{}, Unread: m.Unread}, true
			},
		}},
		notifications: {{
			Source: notifications,
			Target: messages,
			Derive: func(d phase.Data) (phase.Data, bool) {
				n := d.(phase.Notifications)
				return phase.Messages{Channel: "direct", Unread: n.Unread}, true
			},
		}},
	}

	st := newFakeStore()
	c := newTestCoordinator(t, st, func(cfg *CoordinatorConfig) { cfg.Rules = rules })

	_, err := c.QueueSync("u1", phase.Communication, phase.TypeMessages,
		phase.Payload{Data: phase.Messages{Channel: "class", Unread: 3}}, PriorityNormal)
	require.NoError(t, err)

	c.ProcessSyncQueue(context.Background())

	assert.Len(t, st.putsFor(messages), 1)
	assert.Len(t, st.putsFor(notifications), 1)
	assert.Equal(t, 0, c.GetSyncStats().QueueLength)
}

func TestProcessSyncQueue_MaxHopsBoundsChain(t *testing.T) {
	t.Parallel()

	messages := phase.Messages{}.Key()
	notifications := phase.Notifications{}.Key()
	health := phase.Health{}.Key()

	rules := map[phase.Key][]phase.Rule{
		messages: {{
			Source: messages,
			Target: notifications,
			Derive: func(phase.Data) (phase.Data, bool) {
				return phase.Notifications{Items: []phase.Notification{}}, true
			},
		}},
		notifications: {{
			Source: notifications,
			Target: health,
			Derive: func(phase.Data) (phase.Data, bool) {
				return phase.Health{SleepHours: 8}, true
			},
		}},
	}

	st := newFakeStore()
	c := newTestCoordinator(t, st, func(cfg *CoordinatorConfig) {
		cfg.Rules = rules
		cfg.MaxHops = 1
	})

	_, err := c.QueueSync("u1", phase.Communication, phase.TypeMessages,
		phase.Payload{Data: phase.Messages{Channel: "class"}}, PriorityNormal)
	require.NoError(t, err)

	c.ProcessSyncQueue(context.Background())

	assert.Len(t, st.putsFor(notifications), 1)
	assert.Empty(t, st.putsFor(health))
}

func TestProcessSyncQueue_RetryExhaustionDropsItem(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	st.putErr = errors.New("store unavailable")

	c := newTestCoordinator(t, st)

	var cl collector
	c.AddSyncListener(phase.Wellbeing, phase.TypeHealth, cl.listen)

	_, err := c.QueueSync("u1", phase.Wellbeing, phase.TypeHealth,
		phase.Payload{Data: phase.Health{SleepHours: 6}}, PriorityNormal)
	require.NoError(t, err)

	c.ProcessSyncQueue(context.Background())
	waitIdle(t, c)

	assert.Equal(t, defaultMaxAttempts, st.putCount())
	assert.Empty(t, cl.got(), "failed items never reach listeners")

	stats := c.GetSyncStats()
	assert.Equal(t, 0, stats.QueueLength)
	assert.Equal(t, 0, stats.PendingRetries)
	assert.Equal(t, 1, stats.DroppedRecords["u1:PHASE_4:health"])
	assert.Empty(t, stats.LastSync)
	assert.InDelta(t, 1.0, testutil.ToFloat64(c.metrics.itemsDropped), 0)
}

func TestProcessSyncQueue_BackoffDoublesPerAttempt(t *testing.T) {
	t.Parallel()

	const base = time.Millisecond

	st := newFakeStore()
	st.putErr = errors.New("store unavailable")

	c := newTestCoordinator(t, st, func(cfg *CoordinatorConfig) {
		cfg.RetryBase = base
		cfg.MaxAttempts = 3
	})

	var (
		mu     stdsync.Mutex
		delays []time.Duration
	)

	c.afterFunc = func(d time.Duration, f func()) *time.Timer {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()

		return time.AfterFunc(d, f)
	}

	_, err := c.QueueSync("u1", phase.Wellbeing, phase.TypeHealth,
		phase.Payload{Data: phase.Health{SleepHours: 6}}, PriorityNormal)
	require.NoError(t, err)

	c.ProcessSyncQueue(context.Background())
	waitIdle(t, c)

	mu.Lock()
	defer mu.Unlock()

	// Attempts 1 and 2 back off 2x then 4x base; attempt 3 drops.
	assert.Equal(t, []time.Duration{2 * base, 4 * base}, delays)
	assert.Equal(t, 3, st.putCount())

	stats := c.GetSyncStats()
	assert.Equal(t, 1, stats.DroppedRecords["u1:PHASE_4:health"])
	assert.Empty(t, stats.FailingRecords, "a drop clears the consecutive failure count")
}

func TestGetSyncStats_ReportsFailingRecord(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	st.putErr = errors.New("down")

	c := newTestCoordinator(t, st, func(cfg *CoordinatorConfig) { cfg.RetryBase = time.Hour })

	_, err := c.QueueSync("u1", phase.Wellbeing, phase.TypeHealth,
		phase.Payload{Data: phase.Health{SleepHours: 6}}, PriorityNormal)
	require.NoError(t, err)

	c.ProcessSyncQueue(context.Background())

	stats := c.GetSyncStats()
	assert.Equal(t, map[string]int{"u1:PHASE_4:health": 1}, stats.FailingRecords)
	assert.Empty(t, stats.DroppedRecords)
	assert.Equal(t, 1, stats.PendingRetries)
}

func TestProcessSyncQueue_RecoversAfterTransientFailure(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	st.putErr = errors.New("transient")

	c := newTestCoordinator(t, st, func(cfg *CoordinatorConfig) { cfg.RetryBase = 20 * time.Millisecond })

	var cl collector
	c.AddSyncListener(phase.Wellbeing, phase.TypeHealth, cl.listen)

	_, err := c.QueueSync("u1", phase.Wellbeing, phase.TypeHealth,
		phase.Payload{Data: phase.Health{SleepHours: 6}}, PriorityNormal)
	require.NoError(t, err)

	c.ProcessSyncQueue(context.Background())

	st.mu.Lock()
	st.putErr = nil
	st.mu.Unlock()

	waitIdle(t, c)

	require.Len(t, cl.got(), 1)
	assert.GreaterOrEqual(t, cl.got()[0].Attempts, 1)
}

func TestClose_CancelsPendingRetries(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	st.putErr = errors.New("down")

	c := newTestCoordinator(t, st, func(cfg *CoordinatorConfig) { cfg.RetryBase = time.Hour })

	_, err := c.QueueSync("u1", phase.Wellbeing, phase.TypeHealth,
		phase.Payload{Data: phase.Health{SleepHours: 6}}, PriorityNormal)
	require.NoError(t, err)

	c.ProcessSyncQueue(context.Background())
	assert.Equal(t, 1, c.GetSyncStats().PendingRetries)

	require.NoError(t, c.Close())

	stats := c.GetSyncStats()
	assert.Equal(t, 0, stats.PendingRetries)
	assert.Equal(t, 0, stats.QueueLength)
	assert.Equal(t, 1, st.putCount())
}

func TestClose_WaitsForBackgroundDrain(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	st.putGate = make(chan struct{})
	st.putEntered = make(chan struct{}, 1)

	c := newTestCoordinator(t, st)

	_, err := c.QueueSync("u1", phase.Wellbeing, phase.TypeHealth,
		phase.Payload{Data: phase.Health{SleepHours: 6}}, PriorityHigh)
	require.NoError(t, err)

	select {
	case <-st.putEntered:
	case <-time.After(2 * time.Second):
		t.Fatal("high-priority drain never reached the store")
	}

	closed := make(chan struct{})

	go func() {
		c.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a background drain was writing")
	case <-time.After(50 * time.Millisecond):
	}

	close(st.putGate)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after the drain finished")
	}

	assert.GreaterOrEqual(t, st.putCount(), 1)
}

func TestGetSyncStats_AfterDrain(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator(t, newFakeStore())

	c.AddSyncListener(phase.Assessment, phase.TypeProgress, func(SyncItem) {})
	c.AddSyncListener(phase.Assessment, phase.TypeProgress, func(SyncItem) {})

	_, err := c.QueueSync("u1", phase.Assessment, phase.TypeAssessment, phase.Payload{
		Data: phase.AssessmentData{Subject: "maths", Score: 72, Grade: "B"},
	}, PriorityNormal)
	require.NoError(t, err)

	c.ProcessSyncQueue(context.Background())

	stats := c.GetSyncStats()
	assert.Equal(t, 0, stats.QueueLength)
	assert.False(t, stats.SyncInProgress)
	assert.Equal(t, 2, stats.ListenerCount)
	assert.Contains(t, stats.LastSync, "u1:PHASE_5:assessment")
	assert.Contains(t, stats.LastSync, "u1:PHASE_5:progress")
	assert.Contains(t, stats.LastSync, "u1:PHASE_2:insights")
}

func TestListeners_PanicIsolatedAndRemoval(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	c := newTestCoordinator(t, st)

	var first, last collector

	c.AddSyncListener(phase.Wellbeing, phase.TypeHealth, first.listen)
	c.AddSyncListener(phase.Wellbeing, phase.TypeHealth, func(SyncItem) { panic("boom") })
	lastID := c.AddSyncListener(phase.Wellbeing, phase.TypeHealth, last.listen)

	health := phase.Payload{Data: phase.Health{SleepHours: 6}}

	_, err := c.QueueSync("u1", phase.Wellbeing, phase.TypeHealth, health, PriorityNormal)
	require.NoError(t, err)

	c.ProcessSyncQueue(context.Background())

	assert.Len(t, first.got(), 1)
	assert.Len(t, last.got(), 1)
	assert.Equal(t, 1, st.putCount(), "a panicking listener does not fail the item")

	assert.True(t, c.RemoveSyncListener(phase.Wellbeing, phase.TypeHealth, lastID))
	assert.False(t, c.RemoveSyncListener(phase.Wellbeing, phase.TypeHealth, lastID))
	assert.Equal(t, 2, c.GetSyncStats().ListenerCount)

	_, err = c.QueueSync("u2", phase.Wellbeing, phase.TypeHealth, health, PriorityNormal)
	require.NoError(t, err)

	c.ProcessSyncQueue(context.Background())

	assert.Len(t, first.got(), 2)
	assert.Len(t, last.got(), 1)
}

func TestSubscribe_DeliversUntilCanceled(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator(t, newFakeStore())

	ctx, cancel := context.WithCancel(context.Background())
	ch := c.Subscribe(ctx, phase.Health{}.Key(), 1)

	_, err := c.QueueSync("u1", phase.Wellbeing, phase.TypeHealth,
		phase.Payload{Data: phase.Health{SleepHours: 9}}, PriorityNormal)
	require.NoError(t, err)

	c.ProcessSyncQueue(context.Background())

	select {
	case it := <-ch:
		assert.Equal(t, "u1", it.UserID)
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber did not receive the item")
	}

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel closes after cancel")
	case <-time.After(5 * time.Second):
		t.Fatal("subscription channel was not closed")
	}
}

func TestSubscribe_ClosedByCoordinatorClose(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator(t, newFakeStore())
	ch := c.Subscribe(context.Background(), phase.Health{}.Key(), 0)

	require.NoError(t, c.Close())

	_, ok := <-ch
	assert.False(t, ok)

	_, ok = <-c.Subscribe(context.Background(), phase.Health{}.Key(), 0)
	assert.False(t, ok, "subscribing after Close yields a closed channel")
}

func TestForceSyncUser_ReloadsStoredValue(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	stored := gamification(80, 5)
	stored.Timestamp = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st.seed("u1", phase.Gamification{}.Key(), stored)

	c := newTestCoordinator(t, st)

	var games, analytics, wellbeing collector
	c.AddSyncListener(phase.Analytics, phase.TypeGamification, games.listen)
	c.AddSyncListener(phase.Analytics, phase.TypeAnalytics, analytics.listen)
	c.AddSyncListener(phase.Wellbeing, phase.TypeWellbeing, wellbeing.listen)

	require.NoError(t, c.ForceSyncUser(context.Background(), "u1", phase.Analytics))

	require.Len(t, games.got(), 1)
	got := games.got()[0]
	assert.True(t, got.Payload.ForceRefresh)
	assert.Equal(t, stored.Data, got.Payload.Data)

	// Nothing stored for analytics: listeners still hear about it.
	require.Len(t, analytics.got(), 1)
	assert.Nil(t, analytics.got()[0].Payload.Data)

	// The refresh is not written back; its derived write is.
	assert.Empty(t, st.putsFor(phase.Gamification{}.Key()))
	require.Len(t, wellbeing.got(), 1)
	assert.Equal(t, "excited", wellbeing.got()[0].Payload.Data.(phase.WellbeingData).Mood)
}

func TestForceSyncUser_AllPhases(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator(t, newFakeStore())

	require.NoError(t, c.ForceSyncUser(context.Background(), "u1", ""))
	assert.Len(t, c.GetSyncStats().LastSync, len(phase.Keys()))

	err := c.ForceSyncUser(context.Background(), "u1", "PHASE_0")
	require.ErrorIs(t, err, ErrValidation)
}

func TestStart_TickerDrainsQueue(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	c := newTestCoordinator(t, st, func(cfg *CoordinatorConfig) { cfg.Interval = 5 * time.Millisecond })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Start(ctx)
	c.Start(ctx)

	_, err := c.QueueSync("u1", phase.Wellbeing, phase.TypeHealth,
		phase.Payload{Data: phase.Health{SleepHours: 5}}, PriorityNormal)
	require.NoError(t, err)

	waitIdle(t, c)
	assert.Equal(t, 1, st.putCount())
}

func TestParsePriority(t *testing.T) {
	t.Parallel()

	p, err := ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, PriorityNormal, p)

	p, err = ParsePriority("high")
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, p)

	_, err = ParsePriority("urgent")
	require.ErrorIs(t, err, ErrValidation)
}
