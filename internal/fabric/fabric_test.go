package fabric

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// helper: receive one event with a timeout so tests never hang
func recvEvent(t *testing.T, c *Client, within time.Duration) Event {
	t.Helper()
	select {
	case evt, ok := <-c.Events():
		if !ok {
			t.Fatalf("client events closed unexpectedly")
		}
		return evt
	case <-time.After(within):
		t.Fatalf("timed out waiting for event")
		return Event{}
	}
}

func recvNoEvent(t *testing.T, c *Client, within time.Duration) {
	t.Helper()
	select {
	case evt, ok := <-c.Events():
		if !ok {
			return
		}
		t.Fatalf("expected no event within %v, got %+v", within, evt)
	case <-time.After(within):
	}
}

func stats(t *testing.T, f *Fabric) Stats {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s, err := f.Stats(ctx)
	require.NoError(t, err)
	return s
}

func newFabric(t *testing.T) *Fabric {
	t.Helper()
	f := New(context.Background(), zap.NewNop())
	t.Cleanup(f.Close)
	return f
}

func TestFabric_PublishReachesSubscribersOnTopic(t *testing.T) {
	f := newFabric(t)
	ctx := context.Background()

	alice := f.NewClient("alice-1", 4)
	bob := f.NewClient("bob-1", 4)
	require.NoError(t, f.Subscribe(ctx, UserTopic("alice"), alice))
	require.NoError(t, f.Subscribe(ctx, UserTopic("bob"), bob))

	f.Publish(UserTopic("alice"), "inviteReceived", map[string]string{"inviteId": "i1"})

	evt := recvEvent(t, alice, 200*time.Millisecond)
	assert.Equal(t, "user-alice", evt.Topic)
	assert.Equal(t, "inviteReceived", evt.Type)
	recvNoEvent(t, bob, 50*time.Millisecond)
}

func TestFabric_PublishWithoutSubscribersIsNoop(t *testing.T) {
	f := newFabric(t)

	f.Publish(SessionTopic("nobody"), "letterGuessed", nil)

	s := stats(t, f)
	assert.Equal(t, 1, s.Undelivered)
	assert.Empty(t, s.Topics)
}

func TestFabric_SubscribeIsIdempotent(t *testing.T) {
	f := newFabric(t)
	ctx := context.Background()

	c := f.NewClient("c1", 4)
	require.NoError(t, f.Subscribe(ctx, SessionTopic("s1"), c))
	require.NoError(t, f.Subscribe(ctx, SessionTopic("s1"), c))

	f.Publish(SessionTopic("s1"), "wordSubmitted", nil)
	_ = recvEvent(t, c, 200*time.Millisecond)
	recvNoEvent(t, c, 50*time.Millisecond)

	assert.Equal(t, 1, stats(t, f).Topics["session-s1"])
}

func TestFabric_CloseReleasesOnlyThatClient(t *testing.T) {
	f := newFabric(t)
	ctx := context.Background()

	a := f.NewClient("a", 4)
	b := f.NewClient("b", 4)
	require.NoError(t, f.Subscribe(ctx, SessionTopic("s1"), a))
	require.NoError(t, f.Subscribe(ctx, SessionTopic("s1"), b))

	a.Close()
	a.Close()

	// events channel closes after detach
	select {
	case _, ok := <-a.Events():
		require.False(t, ok)
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("expected closed events channel")
	}

	f.Publish(SessionTopic("s1"), "letterGuessed", nil)
	_ = recvEvent(t, b, 200*time.Millisecond)
	assert.Equal(t, 1, stats(t, f).Topics["session-s1"])
}

func TestFabric_UnsubscribeKeepsOtherTopics(t *testing.T) {
	f := newFabric(t)
	ctx := context.Background()

	c := f.NewClient("c", 4)
	require.NoError(t, f.Subscribe(ctx, UserTopic("u"), c))
	require.NoError(t, f.Subscribe(ctx, SessionTopic("s"), c))
	require.NoError(t, f.Unsubscribe(ctx, SessionTopic("s"), c))

	f.Publish(SessionTopic("s"), "letterGuessed", nil)
	f.Publish(UserTopic("u"), "gameStarted", nil)

	evt := recvEvent(t, c, 200*time.Millisecond)
	assert.Equal(t, "gameStarted", evt.Type)
}

func TestFabric_SlowSubscriberDropsOldest(t *testing.T) {
	f := newFabric(t)
	ctx := context.Background()

	c := f.NewClient("slow", 2)
	require.NoError(t, f.Subscribe(ctx, SessionTopic("s"), c))

	for _, typ := range []string{"e1", "e2", "e3"} {
		f.Publish(SessionTopic("s"), typ, nil)
	}
	s := stats(t, f)
	assert.Equal(t, 1, s.Dropped)

	assert.Equal(t, "e2", recvEvent(t, c, 200*time.Millisecond).Type)
	assert.Equal(t, "e3", recvEvent(t, c, 200*time.Millisecond).Type)
}

func TestFabric_ShutdownClosesClients(t *testing.T) {
	f := New(context.Background(), zap.NewNop())
	c := f.NewClient("c", 1)
	require.NoError(t, f.Subscribe(context.Background(), UserTopic("u"), c))

	f.Close()

	select {
	case _, ok := <-c.Events():
		require.False(t, ok)
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("expected closed events channel after shutdown")
	}
	c.Close()
	f.Publish(UserTopic("u"), "late", nil)
}
