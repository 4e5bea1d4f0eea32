package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDraws struct {
	calls []time.Time
	err   error
}

func (f *fakeDraws) ExecuteDueDraws(_ context.Context, now time.Time) (int, error) {
	f.calls = append(f.calls, now)
	return len(f.calls), f.err
}

func TestScheduler_RunDueDrawsUsesClock(t *testing.T) {
	fd := &fakeDraws{}
	s := NewScheduler(fd, "*/5 * * * *", zap.NewNop().Sugar())
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return at }

	s.runDueDraws(context.Background())
	fd.err = errors.New("db down")
	s.runDueDraws(context.Background())

	require.Len(t, fd.calls, 2)
	assert.Equal(t, at, fd.calls[0])
}

func TestScheduler_StartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(&fakeDraws{}, "not a schedule", zap.NewNop().Sugar())
	assert.Error(t, s.Start(context.Background()))
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(&fakeDraws{}, "@every 1h", zap.NewNop().Sugar())
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}
