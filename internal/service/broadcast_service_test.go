package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecipients struct {
	ids []int64
	err error
}

func (f *fakeRecipients) ListIDs(context.Context) ([]int64, error) {
	return f.ids, f.err
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []int64
	failFor map[int64]bool
}

func (f *fakeSender) SendText(chatID int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[chatID] {
		return errors.New("blocked")
	}
	f.sent = append(f.sent, chatID)
	return nil
}

func TestBroadcastDeliversToEveryone(t *testing.T) {
	ids := make([]int64, 100)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	svc := NewBroadcastService(testLogger(), &fakeRecipients{ids: ids}, 8)
	sender := &fakeSender{}

	report, err := svc.Broadcast(context.Background(), sender, "hello")
	require.NoError(t, err)
	assert.Equal(t, 100, report.Total)
	assert.Equal(t, 100, report.Sent)
	assert.Equal(t, 0, report.Failed)
	assert.Len(t, sender.sent, 100)
}

func TestBroadcastCountsFailures(t *testing.T) {
	svc := NewBroadcastService(testLogger(), &fakeRecipients{ids: []int64{1, 2, 3}}, 2)
	sender := &fakeSender{failFor: map[int64]bool{2: true}}

	report, err := svc.Broadcast(context.Background(), sender, "hello")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 1, report.Failed)
}

func TestBroadcastListError(t *testing.T) {
	svc := NewBroadcastService(testLogger(), &fakeRecipients{err: errors.New("db down")}, 2)

	_, err := svc.Broadcast(context.Background(), &fakeSender{}, "hello")
	require.Error(t, err)
}

func TestBroadcastStopsOnCancel(t *testing.T) {
	ids := make([]int64, 1000)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	svc := NewBroadcastService(testLogger(), &fakeRecipients{ids: ids}, 1)
	sender := &fakeSender{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := svc.Broadcast(ctx, sender, "hello")
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, report.Sent, 1000)
}
