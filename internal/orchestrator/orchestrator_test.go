package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gradewatch/gradewatch/internal/detect"
	"github.com/gradewatch/gradewatch/internal/monitor"
	"github.com/gradewatch/gradewatch/internal/notify"
	"github.com/gradewatch/gradewatch/internal/notify/sinks"
	"github.com/gradewatch/gradewatch/internal/session"
	"github.com/gradewatch/gradewatch/internal/storage/memory"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

// fakeFetcher returns canned snapshots or errors per account and records
// which accounts it served.
type fakeFetcher struct {
	mu        sync.Mutex
	snapshots map[string]monitor.Snapshot
	errs      map[string]error
	served    []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, cfg session.Config, account monitor.Account) (monitor.Snapshot, error) {
	f.mu.Lock()
	f.served = append(f.served, account.ID)
	f.mu.Unlock()
	if err := f.errs[account.ID]; err != nil {
		return monitor.Snapshot{}, err
	}
	return f.snapshots[account.ID], nil
}

func (f *fakeFetcher) servedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.served))
	copy(out, f.served)
	return out
}

// sleepFetcher blocks for a fixed duration without watching its context,
// the way a wedged portal connection would.
type sleepFetcher struct {
	d     time.Duration
	mu    sync.Mutex
	calls int
}

func (f *sleepFetcher) Fetch(context.Context, session.Config, monitor.Account) (monitor.Snapshot, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	time.Sleep(f.d)
	return monitor.Snapshot{}, fmt.Errorf("%w: portal unresponsive", monitor.ErrFetch)
}

func (f *sleepFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// deadlineFetcher honours context cancellation but otherwise never finishes.
type deadlineFetcher struct{}

func (deadlineFetcher) Fetch(ctx context.Context, _ session.Config, account monitor.Account) (monitor.Snapshot, error) {
	select {
	case <-ctx.Done():
		return monitor.Snapshot{}, fmt.Errorf("%w: get %s: %w", monitor.ErrFetch, account.ResourceLocator, ctx.Err())
	case <-time.After(5 * time.Second):
		return monitor.Snapshot{AccountID: account.ID}, nil
	}
}

type pingFailSnapshots struct {
	*memory.SnapshotStore
}

func (pingFailSnapshots) Ping(ctx context.Context) error {
	return fmt.Errorf("%w: unreachable", monitor.ErrStorage)
}

func account(id string) monitor.Account {
	return monitor.Account{ID: id, Password: "pw", ResourceLocator: "https://portal.example/" + id}
}

func snapshotOf(accountID string, courses ...monitor.Course) monitor.Snapshot {
	return monitor.Snapshot{
		AccountID:  accountID,
		CapturedAt: time.Unix(1700000000, 0).UTC(),
		Courses:    courses,
	}
}

type testRig struct {
	orch      *Orchestrator
	fetcher   Fetcher
	snapshots *memory.SnapshotStore
	alerts    *memory.AlertStore
	sink      *sinks.MemorySink
}

func newRig(t *testing.T, fetcher Fetcher, configFn ConfigSource) *testRig {
	t.Helper()

	clock := fixedClock{now: time.Unix(1700000000, 0).UTC()}
	snapshots := memory.NewSnapshotStore()
	alerts := memory.NewAlertStore(clock)
	sink := sinks.NewMemorySink()

	det, err := detect.NewDetector(snapshots, zap.NewNop())
	require.NoError(t, err)
	dispatcher := notify.NewDispatcher(sink, zap.NewNop())

	orch, err := New(fetcher, det, dispatcher, snapshots, alerts, clock, configFn, zap.NewNop())
	require.NoError(t, err)
	return &testRig{orch: orch, fetcher: fetcher, snapshots: snapshots, alerts: alerts, sink: sink}
}

func staticConfig(cfg IterationConfig) ConfigSource {
	return func() (IterationConfig, error) { return cfg, nil }
}

func TestStartRejectsEmptyAccountList(t *testing.T) {
	t.Parallel()

	rig := newRig(t, &fakeFetcher{}, staticConfig(IterationConfig{Interval: time.Minute}))
	err := rig.orch.Start(context.Background())
	require.Error(t, err)
	require.False(t, rig.orch.IsRunning())
}

func TestStartRejectsUnreachableStore(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Now()}
	snapshots := pingFailSnapshots{memory.NewSnapshotStore()}
	alerts := memory.NewAlertStore(clock)
	det, err := detect.NewDetector(memory.NewSnapshotStore(), zap.NewNop())
	require.NoError(t, err)
	dispatcher := notify.NewDispatcher(sinks.NewMemorySink(), zap.NewNop())

	cfg := staticConfig(IterationConfig{
		Accounts: []monitor.Account{account("a")},
		Interval: time.Minute,
	})
	orch, err := New(&fakeFetcher{}, det, dispatcher, snapshots, alerts, clock, cfg, zap.NewNop())
	require.NoError(t, err)

	err = orch.Start(context.Background())
	require.ErrorIs(t, err, monitor.ErrStorage)
	require.Equal(t, StateIdle, orch.StateNow())
}

func TestStartAndStopAreIdempotent(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{snapshots: map[string]monitor.Snapshot{"a": snapshotOf("a")}}
	rig := newRig(t, fetcher, staticConfig(IterationConfig{
		Accounts:       []monitor.Account{account("a")},
		Interval:       time.Hour,
		MaxConcurrency: 3,
	}))

	require.NoError(t, rig.orch.Start(context.Background()))
	require.NoError(t, rig.orch.Start(context.Background()))
	require.True(t, rig.orch.IsRunning())

	rig.orch.Stop()
	rig.orch.Stop()
	require.False(t, rig.orch.IsRunning())
	require.Equal(t, StateStopped, rig.orch.StateNow())

	select {
	case <-rig.orch.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after Stop")
	}
}

func TestStopInterruptsInterIterationWait(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{snapshots: map[string]monitor.Snapshot{"a": snapshotOf("a")}}
	rig := newRig(t, fetcher, staticConfig(IterationConfig{
		Accounts:       []monitor.Account{account("a")},
		Interval:       time.Hour,
		MaxConcurrency: 3,
	}))

	require.NoError(t, rig.orch.Start(context.Background()))
	require.Eventually(t, func() bool {
		return len(fetcher.servedIDs()) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	stopped := time.Now()
	rig.orch.Stop()
	select {
	case <-rig.orch.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after Stop")
	}
	require.Less(t, time.Since(stopped), time.Second)
}

func TestRunOnceIsolatesWorkerFailures(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		snapshots: map[string]monitor.Snapshot{
			"good": snapshotOf("good", monitor.Course{Name: "Calculus I"}),
		},
		errs: map[string]error{
			"bad": fmt.Errorf("%w: connection refused", monitor.ErrFetch),
		},
	}
	rig := newRig(t, fetcher, staticConfig(IterationConfig{
		Accounts:       []monitor.Account{account("good"), account("bad")},
		Interval:       time.Minute,
		MaxConcurrency: 3,
	}))

	require.NoError(t, rig.orch.RunOnce(context.Background()))

	// The failing account got a fetch_error alert; the healthy one got its
	// snapshot persisted and a new_course event dispatched.
	alerts, err := rig.alerts.Get(context.Background(), monitor.AlertFetchError)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Contains(t, alerts, "bad")

	_, err = rig.snapshots.Get(context.Background(), "good")
	require.NoError(t, err)

	var sawNewCourse, sawFetchError bool
	for _, evt := range rig.sink.Events() {
		switch evt.Type {
		case monitor.EventNewCourse:
			sawNewCourse = true
			require.Equal(t, "good", evt.AccountID)
		case monitor.EventFetchError:
			sawFetchError = true
			require.Equal(t, "bad", evt.AccountID)
		}
	}
	require.True(t, sawNewCourse)
	require.True(t, sawFetchError)
}

func TestRunOnceRecordsBlockingConditionAlert(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		errs: map[string]error{
			"a": fmt.Errorf("%w: pending survey", monitor.ErrBlockingCondition),
		},
	}
	rig := newRig(t, fetcher, staticConfig(IterationConfig{
		Accounts:       []monitor.Account{account("a")},
		Interval:       time.Minute,
		MaxConcurrency: 3,
	}))

	require.NoError(t, rig.orch.RunOnce(context.Background()))

	blocking, err := rig.alerts.Get(context.Background(), monitor.AlertBlockingCondition)
	require.NoError(t, err)
	require.Contains(t, blocking, "a")

	fetchErrs, err := rig.alerts.Get(context.Background(), monitor.AlertFetchError)
	require.NoError(t, err)
	require.Empty(t, fetchErrs)

	events := rig.sink.Events()
	require.Len(t, events, 1)
	require.Equal(t, monitor.EventBlockingCondition, events[0].Type)
	require.Equal(t, monitor.SeverityCritical, events[0].Severity)
}

func TestRunOnceEmitsExactlyOneNewCourseEvent(t *testing.T) {
	t.Parallel()

	old := snapshotOf("a",
		monitor.Course{Name: "CourseA", Exams: []monitor.ExamRecord{{Label: "Midterm", Score: "70"}}},
		monitor.Course{Name: "CourseB", Exams: []monitor.ExamRecord{{Label: "Midterm", Score: "60"}}},
	)
	fresh := snapshotOf("a",
		monitor.Course{Name: "CourseB", Exams: []monitor.ExamRecord{{Label: "Midterm", Score: "65"}}},
		monitor.Course{Name: "CourseC", Exams: []monitor.ExamRecord{{Label: "Midterm", Score: "40"}}},
	)

	fetcher := &fakeFetcher{snapshots: map[string]monitor.Snapshot{"a": fresh}}
	rig := newRig(t, fetcher, staticConfig(IterationConfig{
		Accounts:       []monitor.Account{account("a")},
		Interval:       time.Minute,
		MaxConcurrency: 3,
	}))
	require.NoError(t, rig.snapshots.Put(context.Background(), old))

	require.NoError(t, rig.orch.RunOnce(context.Background()))

	var newCourse, updates, removed int
	for _, evt := range rig.sink.Events() {
		switch evt.Type {
		case monitor.EventNewCourse:
			newCourse++
			require.Contains(t, evt.Title, "CourseC")
		case monitor.EventGradeUpdate:
			updates++
			require.Contains(t, evt.Title, "CourseB")
		case monitor.EventCourseRemoved:
			removed++
			require.Contains(t, evt.Title, "CourseA")
		}
	}
	require.Equal(t, 1, newCourse)
	require.Equal(t, 1, updates)
	require.Equal(t, 1, removed)
}

func TestConfigReloadTakesEffectNextIteration(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{snapshots: map[string]monitor.Snapshot{
		"first":  snapshotOf("first"),
		"second": snapshotOf("second"),
	}}

	var mu sync.Mutex
	current := []monitor.Account{account("first")}
	configFn := func() (IterationConfig, error) {
		mu.Lock()
		defer mu.Unlock()
		return IterationConfig{
			Accounts:       current,
			Interval:       20 * time.Millisecond,
			MaxConcurrency: 3,
		}, nil
	}

	rig := newRig(t, fetcher, configFn)
	require.NoError(t, rig.orch.Start(context.Background()))
	defer rig.orch.Stop()

	require.Eventually(t, func() bool {
		return len(fetcher.servedIDs()) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	current = []monitor.Account{account("second")}
	mu.Unlock()

	require.Eventually(t, func() bool {
		for _, id := range fetcher.servedIDs() {
			if id == "second" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunOnceKeepsGoingWhenConfigSourceFails(t *testing.T) {
	t.Parallel()

	rig := newRig(t, &fakeFetcher{}, func() (IterationConfig, error) {
		return IterationConfig{}, errors.New("config file unreadable")
	})
	err := rig.orch.RunOnce(context.Background())
	require.Error(t, err)
}

func TestRunOnceNotBlockedByTaskIgnoringTimeout(t *testing.T) {
	t.Parallel()

	fetcher := &sleepFetcher{d: 3 * time.Second}
	rig := newRig(t, fetcher, staticConfig(IterationConfig{
		Accounts:       []monitor.Account{account("a"), account("b"), account("c")},
		Interval:       time.Minute,
		MaxConcurrency: 3,
		TaskTimeout:    100 * time.Millisecond,
	}))

	start := time.Now()
	require.NoError(t, rig.orch.RunOnce(context.Background()))
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, 3, fetcher.callCount())
}

func TestTaskTimeoutCancelsSlowFetch(t *testing.T) {
	t.Parallel()

	rig := newRig(t, deadlineFetcher{}, staticConfig(IterationConfig{
		Accounts:       []monitor.Account{account("a")},
		Interval:       time.Minute,
		MaxConcurrency: 3,
		TaskTimeout:    50 * time.Millisecond,
	}))

	start := time.Now()
	require.NoError(t, rig.orch.RunOnce(context.Background()))
	require.Less(t, time.Since(start), time.Second)

	// The fetch failed on its own deadline, not on a shutdown, so the
	// account gets a fetch_error alert.
	require.Eventually(t, func() bool {
		alerts, err := rig.alerts.Get(context.Background(), monitor.AlertFetchError)
		require.NoError(t, err)
		_, ok := alerts["a"]
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCancelledFetchLeavesNoAlert(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		errs: map[string]error{
			"a": fmt.Errorf("%w: get page: %w", monitor.ErrFetch, context.Canceled),
		},
	}
	rig := newRig(t, fetcher, staticConfig(IterationConfig{
		Accounts:       []monitor.Account{account("a")},
		Interval:       time.Minute,
		MaxConcurrency: 3,
	}))

	require.NoError(t, rig.orch.RunOnce(context.Background()))

	for _, kind := range []monitor.AlertKind{monitor.AlertFetchError, monitor.AlertBlockingCondition} {
		alerts, err := rig.alerts.Get(context.Background(), kind)
		require.NoError(t, err)
		require.Empty(t, alerts)
	}
	require.Empty(t, rig.sink.Events())
}

func TestStartRefusesWhilePreviousRunDrains(t *testing.T) {
	t.Parallel()

	fetcher := &sleepFetcher{d: time.Second}
	rig := newRig(t, fetcher, staticConfig(IterationConfig{
		Accounts:       []monitor.Account{account("a")},
		Interval:       time.Hour,
		MaxConcurrency: 3,
	}))

	require.NoError(t, rig.orch.Start(context.Background()))
	require.Eventually(t, func() bool {
		return fetcher.callCount() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	rig.orch.Stop()
	err := rig.orch.Start(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "draining")

	// Once the in-flight task finishes and the loop exits, Start succeeds.
	require.Eventually(t, func() bool {
		return rig.orch.Start(context.Background()) == nil
	}, 3*time.Second, 20*time.Millisecond)

	rig.orch.Stop()
	select {
	case <-rig.orch.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("loop did not exit after Stop")
	}
}
