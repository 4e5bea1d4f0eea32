package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sipadmin/funds-engine/internal/model"
)

type memStore struct {
	events    []model.OutboxEvent
	published []uint64
	failOn    map[uint64]bool
}

func (m *memStore) PollOutbox(_ context.Context, limit int) ([]model.OutboxEvent, error) {
	var out []model.OutboxEvent
	for _, e := range m.events {
		if !e.Processed && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) MarkOutboxProcessed(_ context.Context, id uint64) error {
	for i := range m.events {
		if m.events[i].ID == id {
			m.events[i].Processed = true
		}
	}
	return nil
}

func (m *memStore) PublishEvent(_ context.Context, evt model.OutboxEvent) error {
	if m.failOn[evt.ID] {
		return errors.New("broker unavailable")
	}
	m.published = append(m.published, evt.ID)
	return nil
}

func TestDispatcher_RunOnce(t *testing.T) {
	st := &memStore{events: []model.OutboxEvent{{ID: 1}, {ID: 2}, {ID: 3}}}
	d := NewDispatcher(st, 10, zap.NewNop().Sugar())

	n, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []uint64{1, 2, 3}, st.published)

	n, err = d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDispatcher_StopsAtFirstFailure(t *testing.T) {
	st := &memStore{
		events: []model.OutboxEvent{{ID: 1}, {ID: 2}, {ID: 3}},
		failOn: map[uint64]bool{2: true},
	}
	d := NewDispatcher(st, 10, zap.NewNop().Sugar())

	n, err := d.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uint64{1}, st.published, "events behind the failed one wait")

	st.failOn = nil
	n, err = d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []uint64{1, 2, 3}, st.published)
}

func TestDispatcher_BatchLimit(t *testing.T) {
	st := &memStore{events: []model.OutboxEvent{{ID: 1}, {ID: 2}, {ID: 3}}}
	d := NewDispatcher(st, 2, zap.NewNop().Sugar())

	n, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
