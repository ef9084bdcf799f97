package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSchedulerRunsJobsUntilStopped(t *testing.T) {
	var scans, deliveries atomic.Int32
	s := New(nil,
		Job{Name: "scan", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			scans.Add(1)
			return nil
		}},
		Job{Name: "delivery", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			deliveries.Add(1)
			return errors.New("gateway down")
		}},
	)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return scans.Load() >= 2 && deliveries.Load() >= 2 }, time.Second, time.Millisecond)
	s.Stop()

	after := scans.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, scans.Load())
}

func TestSchedulerSkipsDisabledJobs(t *testing.T) {
	var runs atomic.Int32
	s := New(nil,
		Job{Name: "off", Interval: 0, Run: func(context.Context) error { runs.Add(1); return nil }},
		Job{Name: "nil", Interval: time.Millisecond},
	)
	s.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	s.Stop()
	assert.Zero(t, runs.Load())
}

func TestStopCancelsRunningPass(t *testing.T) {
	started := make(chan struct{}, 1)
	s := New(nil, Job{Name: "slow", Interval: time.Millisecond, Run: func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	}})

	s.Start(context.Background())
	<-started
	s.Stop()
}

func TestStopWithoutStart(t *testing.T) {
	New(nil).Stop()
}
