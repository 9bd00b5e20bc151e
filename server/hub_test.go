package server

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/lowerthirds/lowerthirds/internal/protocol"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, cancel
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case data, ok := <-c.SendChan():
		if !ok {
			t.Fatalf("client %s closed", c.ID())
		}
		return data
	case <-time.After(2 * time.Second):
		t.Fatalf("client %s got nothing", c.ID())
		return nil
	}
}

func TestHub_RoomBroadcast(t *testing.T) {
	hub, _ := startHub(t)
	a := hub.NewClient(nil)
	b := hub.NewClient(nil)
	hub.Register(a)
	hub.Register(b)

	hub.Join(a, "news")
	hub.Join(b, "sports")
	assert.Equal(t, hub.RoomSize("news"), 1)
	assert.Equal(t, a.Joined("news"), true)
	assert.Equal(t, a.Joined("sports"), false)

	hub.BroadcastRoom("news", protocol.TypeHideLowerThird, protocol.ChannelMessage{Channel: "news"})
	env, err := protocol.ParseEnvelope(receive(t, a))
	assert.Equal(t, err, nil)
	assert.Equal(t, env.Type, protocol.TypeHideLowerThird)

	hub.BroadcastAll(protocol.TypeReloadClient, nil)
	env, _ = protocol.ParseEnvelope(receive(t, b))
	assert.Equal(t, env.Type, protocol.TypeReloadClient)
	env, _ = protocol.ParseEnvelope(receive(t, a))
	assert.Equal(t, env.Type, protocol.TypeReloadClient)

	hub.Leave(a, "news")
	assert.Equal(t, hub.RoomSize("news"), 0)
	assert.Equal(t, a.Joined("news"), false)
}

func TestHub_UnregisterLeavesRooms(t *testing.T) {
	hub, _ := startHub(t)
	c := hub.NewClient(nil)
	hub.Register(c)
	hub.Join(c, "news")
	hub.Unregister(c)

	// the send channel is closed once the hub has dropped the client
	select {
	case _, ok := <-c.SendChan():
		assert.Equal(t, ok, false)
	case <-time.After(2 * time.Second):
		t.Fatal("client not dropped")
	}
	assert.Equal(t, hub.RoomSize("news"), 0)
	assert.Equal(t, c.Send([]byte("late")), false)
}

func TestHub_StoppedHubDoesNotBlock(t *testing.T) {
	hub, cancel := startHub(t)
	cancel()

	done := make(chan struct{})
	go func() {
		c := hub.NewClient(nil)
		hub.Register(c)
		hub.BroadcastAll(protocol.TypeReloadClient, nil)
		hub.Unregister(c)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub calls blocked after stop")
	}
}
