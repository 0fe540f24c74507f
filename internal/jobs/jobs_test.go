package jobs

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultPoll = Backoff{Base: time.Second, Growth: 1.5, Max: 5 * time.Minute}

func TestTruncateError(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want string
	}{
		{name: "short message", msg: "timeout", want: "timeout"},
		{name: "exactly 500", msg: strings.Repeat("a", 500), want: strings.Repeat("a", 500)},
		{name: "long message", msg: strings.Repeat("b", 1000), want: strings.Repeat("b", 500)},
		{name: "empty", msg: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TruncateError(tt.msg))
		})
	}
}

func TestBackoff_Delay(t *testing.T) {
	for k := 0; k < 40; k++ {
		want := time.Duration(float64(time.Second) * pow(1.5, k))
		if want > 5*time.Minute {
			want = 5 * time.Minute
		}
		assert.Equal(t, want, defaultPoll.Delay(k), "k=%d", k)
	}
	assert.Equal(t, 5*time.Minute, defaultPoll.Delay(10_000))
}

func TestPollBackoff_GrowsAndResets(t *testing.T) {
	p := NewPollBackoff(defaultPoll)

	assert.Equal(t, time.Second, p.Next())
	assert.Equal(t, 1500*time.Millisecond, p.Next())
	assert.Equal(t, 2250*time.Millisecond, p.Next())
	assert.Equal(t, 3375*time.Millisecond, p.Current())

	p.Reset()
	assert.Equal(t, time.Second, p.Current())
}

func TestPollBackoff_AfterKEmptyPolls(t *testing.T) {
	for _, k := range []int{0, 1, 5, 14, 15, 30, 200} {
		p := NewPollBackoff(defaultPoll)
		for i := 0; i < k; i++ {
			p.Next()
		}
		assert.Equal(t, defaultPoll.Delay(k), p.Current(), "k=%d", k)
		assert.LessOrEqual(t, p.Current(), 5*time.Minute)
	}
}

func TestRetryPolicy_NextAttemptAt(t *testing.T) {
	policy := RetryPolicy{Base: 10 * time.Second, Growth: 2, Max: time.Hour}
	prev := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, prev.Add(20*time.Second), policy.NextAttemptAt(1, prev, 0))
	assert.Equal(t, prev.Add(43*time.Second), policy.NextAttemptAt(2, prev, 3*time.Second))
	assert.Equal(t, prev.Add(time.Hour), policy.NextAttemptAt(20, prev, 0))
	assert.Equal(t, prev.Add(time.Hour), policy.NextAttemptAt(9, prev, 30*time.Minute))
}

func TestRetryPolicy_AlwaysAdvances(t *testing.T) {
	policy := RetryPolicy{}
	prev := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, policy.NextAttemptAt(1, prev, 0).After(prev))
}

func TestRetryPolicy_Jitter(t *testing.T) {
	assert.Zero(t, RetryPolicy{}.Jitter())

	policy := RetryPolicy{MaxJitter: time.Second}
	for i := 0; i < 100; i++ {
		j := policy.Jitter()
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.Less(t, j, time.Second)
	}
}

func TestRunStatus(t *testing.T) {
	s := NewRunStatus()
	assert.True(t, s.Alive())
	assert.False(t, s.Disabled())

	s.Disable()
	assert.True(t, s.Disabled())
	s.Enable()
	assert.False(t, s.Disabled())

	s.Shutdown()
	assert.False(t, s.Alive())
}

// scripted returns a StepFunc that yields results in order and cancels
// ctx once they are exhausted.
func scripted(cancel context.CancelFunc, results ...Result) (StepFunc, *int) {
	calls := 0
	return func(ctx context.Context) (Result, error) {
		if calls >= len(results) {
			cancel()
			return Idle, nil
		}
		r := results[calls]
		calls++
		if r == Failed {
			return Failed, errors.New("boom")
		}
		return r, nil
	}, &calls
}

func recordingSleep(sleeps *[]time.Duration) SleepFunc {
	return func(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
		*sleeps = append(*sleeps, d)
		return ctx.Err() == nil
	}
}

func TestLoop_PollBackoffSequence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	step, _ := scripted(cancel, Idle, Idle, Idle, Done, Idle)
	var sleeps []time.Duration
	loop := NewLoop(LoopConfig{Name: "test", Poll: defaultPoll}, NewRunStatus(), slog.Default(), step).
		WithSleep(recordingSleep(&sleeps))

	loop.Run(ctx)

	require.GreaterOrEqual(t, len(sleeps), 4)
	assert.Equal(t, []time.Duration{
		time.Second, 1500 * time.Millisecond, 2250 * time.Millisecond,
		time.Second,
	}, sleeps[:4])

	m := loop.Metrics()
	assert.Equal(t, int64(1), m.Succeeded)
	assert.Equal(t, int64(0), m.Failed)
}

func TestLoop_FailureDoesNotBackOff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	step, calls := scripted(cancel, Failed, Failed, Failed)
	var sleeps []time.Duration
	loop := NewLoop(LoopConfig{Name: "test", Poll: defaultPoll}, NewRunStatus(), slog.Default(), step).
		WithSleep(recordingSleep(&sleeps))

	loop.Run(ctx)

	assert.Equal(t, 3, *calls)
	// only the final idle poll after the script ends sleeps
	assert.LessOrEqual(t, len(sleeps), 1)
	assert.Equal(t, int64(3), loop.Metrics().Failed)
}

func TestLoop_FailureDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	step, _ := scripted(cancel, Failed, Idle)
	var sleeps []time.Duration
	loop := NewLoop(LoopConfig{Name: "test", Poll: defaultPoll, FailureDelay: 5 * time.Second},
		NewRunStatus(), slog.Default(), step).
		WithSleep(recordingSleep(&sleeps))

	loop.Run(ctx)

	require.GreaterOrEqual(t, len(sleeps), 2)
	assert.Equal(t, 5*time.Second, sleeps[0])
	assert.Equal(t, time.Second, sleeps[1])
}

func TestLoop_DisabledDoesNoWork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	status := NewRunStatus()
	status.Disable()

	stepCalls := 0
	var sleeps []time.Duration
	loop := NewLoop(LoopConfig{Name: "test", Poll: defaultPoll}, status, slog.Default(),
		func(ctx context.Context) (Result, error) {
			stepCalls++
			return Idle, nil
		}).
		WithSleep(func(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
			sleeps = append(sleeps, d)
			if len(sleeps) == 3 {
				cancel()
			}
			return ctx.Err() == nil
		})

	loop.Run(ctx)

	assert.Zero(t, stepCalls)
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, sleeps)
}

func TestLoop_ShutdownBetweenUnits(t *testing.T) {
	status := NewRunStatus()
	calls := 0
	loop := NewLoop(LoopConfig{Name: "test", Poll: defaultPoll}, status, slog.Default(),
		func(ctx context.Context) (Result, error) {
			calls++
			status.Shutdown()
			return Done, nil
		})

	loop.Run(context.Background())

	assert.Equal(t, 1, calls)
}

func TestLoop_PanicIsContained(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	loop := NewLoop(LoopConfig{Name: "test", Poll: defaultPoll}, NewRunStatus(), slog.Default(),
		func(ctx context.Context) (Result, error) {
			calls++
			if calls == 1 {
				panic("claimed row vanished")
			}
			cancel()
			return Idle, nil
		}).
		WithSleep(recordingSleep(new([]time.Duration)))

	loop.Run(ctx)

	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(1), loop.Metrics().Failed)
}

func TestLoop_StartStop(t *testing.T) {
	loop := NewLoop(LoopConfig{Name: "test", Poll: Backoff{Base: time.Millisecond, Growth: 1, Max: time.Millisecond}},
		NewRunStatus(), slog.Default(),
		func(ctx context.Context) (Result, error) { return Idle, nil })

	require.NoError(t, loop.Start(context.Background()))
	assert.True(t, loop.IsRunning())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, loop.Stop(ctx))
	assert.False(t, loop.IsRunning())
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "done", Done.String())
	assert.Equal(t, "failed", Failed.String())
}

func pow(b float64, k int) float64 {
	r := 1.0
	for i := 0; i < k; i++ {
		r *= b
	}
	return r
}
