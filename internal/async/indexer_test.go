package async

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/labsearch/internal/content"
	"github.com/Aman-CERP/labsearch/internal/index"
	"github.com/Aman-CERP/labsearch/internal/store"
)

// fakeRunner records requests and optionally blocks until released.
type fakeRunner struct {
	mu       sync.Mutex
	requests []index.Request
	release  chan struct{}
	err      error
}

func (f *fakeRunner) Run(ctx context.Context, req index.Request) (*index.Report, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &index.Report{Trigger: req.Reason}, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newStore(t *testing.T, records int) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	for i := 0; i < records; i++ {
		require.NoError(t, st.UpsertBatch(context.Background(), []store.Record{{
			ID:          "task-t" + string(rune('a'+i)),
			ContentType: content.TypeTask,
			ContentID:   "t" + string(rune('a'+i)),
			Vector:      []float32{1, 0},
		}}))
	}
	return st
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Runner: &fakeRunner{}})
	assert.Error(t, err)
}

func TestStart_EmptyStoreRunsAutoPass(t *testing.T) {
	// Given: an empty store and a usable provider
	runner := &fakeRunner{}
	a, err := New(Config{Runner: runner, Store: newStore(t, 0)})
	require.NoError(t, err)
	defer a.Stop()

	// When: starting
	scheduled, err := a.Start(context.Background())

	// Then: one auto pass runs
	require.NoError(t, err)
	assert.True(t, scheduled)
	require.Eventually(t, func() bool { return a.Last().Runs == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, index.TriggerAuto, a.Last().Report.Trigger)
}

func TestStart_SkipsWhenNotNeeded(t *testing.T) {
	tests := []struct {
		name      string
		records   int
		usable    bool
		noInitial bool
	}{
		{"store already populated", 2, true, false},
		{"provider not usable", 0, false, false},
		{"initial pass disabled", 0, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			a, err := New(Config{
				Runner:        runner,
				Store:         newStore(t, tt.records),
				Usable:        func() bool { return tt.usable },
				NoInitialPass: tt.noInitial,
			})
			require.NoError(t, err)
			defer a.Stop()

			scheduled, err := a.Start(context.Background())

			require.NoError(t, err)
			assert.False(t, scheduled)
			time.Sleep(20 * time.Millisecond)
			assert.Zero(t, runner.count())
		})
	}
}

func TestTrigger_Coalesces(t *testing.T) {
	// Given: a pass blocked in the runner
	runner := &fakeRunner{release: make(chan struct{})}
	a, err := New(Config{Runner: runner, Store: newStore(t, 1)})
	require.NoError(t, err)
	defer a.Stop()
	_, err = a.Start(context.Background())
	require.NoError(t, err)

	require.True(t, a.Trigger(index.TriggerWatch))
	require.Eventually(t, a.Running, time.Second, 5*time.Millisecond)

	// When: three more triggers arrive during the pass
	queued := a.Trigger(index.TriggerWatch)
	dropped1 := a.Trigger(index.TriggerWatch)
	dropped2 := a.Trigger(index.TriggerWatch)

	// Then: only one follow-up pass is queued
	assert.True(t, queued)
	assert.False(t, dropped1)
	assert.False(t, dropped2)

	close(runner.release)
	require.Eventually(t, func() bool { return a.Last().Runs == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, runner.count())
}

func TestStop_CancelsPassInFlight(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	a, err := New(Config{Runner: runner, Store: newStore(t, 1)})
	require.NoError(t, err)
	_, err = a.Start(context.Background())
	require.NoError(t, err)

	a.Trigger(index.TriggerWatch)
	require.Eventually(t, a.Running, time.Second, 5*time.Millisecond)

	a.Stop()

	assert.False(t, a.Running())
	assert.ErrorIs(t, a.Last().Err, context.Canceled)
	a.Stop()
}

func TestRunOnce_RecordsErrors(t *testing.T) {
	runner := &fakeRunner{err: errors.New("boom")}
	a, err := New(Config{Runner: runner, Store: newStore(t, 0)})
	require.NoError(t, err)
	defer a.Stop()

	_, err = a.Start(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return a.Last().Runs == 1 }, time.Second, 5*time.Millisecond)
	assert.EqualError(t, a.Last().Err, "boom")
}

func TestRunOnce_AlreadyRunningIsNotARun(t *testing.T) {
	runner := &fakeRunner{err: index.ErrAlreadyRunning}
	a, err := New(Config{Runner: runner, Store: newStore(t, 1)})
	require.NoError(t, err)
	defer a.Stop()
	_, err = a.Start(context.Background())
	require.NoError(t, err)

	a.Trigger(index.TriggerWatch)

	require.Eventually(t, func() bool { return runner.count() == 1 && !a.Running() }, time.Second, 5*time.Millisecond)
	assert.Zero(t, a.Last().Runs)
}

func TestStart_NoInitialPassStillServesTriggers(t *testing.T) {
	runner := &fakeRunner{}
	a, err := New(Config{Runner: runner, Store: newStore(t, 0), NoInitialPass: true})
	require.NoError(t, err)
	defer a.Stop()

	scheduled, err := a.Start(context.Background())
	require.NoError(t, err)
	assert.False(t, scheduled)

	a.Trigger(index.TriggerWatch)

	require.Eventually(t, func() bool { return a.Last().Runs == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, index.TriggerWatch, a.Last().Report.Trigger)
}

func TestRecheck_SchedulesOnceProviderBecomesUsable(t *testing.T) {
	// Given: an empty store and no usable provider at startup
	runner := &fakeRunner{}
	var mu sync.Mutex
	usable := false
	a, err := New(Config{
		Runner: runner,
		Store:  newStore(t, 0),
		Usable: func() bool {
			mu.Lock()
			defer mu.Unlock()
			return usable
		},
	})
	require.NoError(t, err)
	defer a.Stop()

	scheduled, err := a.Start(context.Background())
	require.NoError(t, err)
	assert.False(t, scheduled)

	// When: a key appears and the indexer rechecks
	mu.Lock()
	usable = true
	mu.Unlock()
	scheduled, err = a.Recheck(context.Background())

	// Then: the initial pass runs
	require.NoError(t, err)
	assert.True(t, scheduled)
	require.Eventually(t, func() bool { return a.Last().Runs == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, index.TriggerAuto, a.Last().Report.Trigger)
}

func TestRecheck_NoopBeforeStartOrWithRecords(t *testing.T) {
	// Given: an indexer that has not started
	a, err := New(Config{Runner: &fakeRunner{}, Store: newStore(t, 0)})
	require.NoError(t, err)

	// Then: Recheck does nothing
	scheduled, err := a.Recheck(context.Background())
	require.NoError(t, err)
	assert.False(t, scheduled)

	// Given: a started indexer over a populated store
	runner := &fakeRunner{}
	b, err := New(Config{Runner: runner, Store: newStore(t, 2)})
	require.NoError(t, err)
	defer b.Stop()
	_, err = b.Start(context.Background())
	require.NoError(t, err)

	// Then: Recheck does nothing either
	scheduled, err = b.Recheck(context.Background())
	require.NoError(t, err)
	assert.False(t, scheduled)
	assert.Zero(t, runner.count())
}
