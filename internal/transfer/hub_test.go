package transfer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"MsgVault/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversPerOwner(t *testing.T) {
	hub := NewHub(4)
	a := hub.Subscribe(1)
	b := hub.Subscribe(2)
	defer b.Close()

	require.NoError(t, hub.Publish(context.Background(), Event{Type: EventCreated, OwnerID: 1, Transfer: model.TransferLog{ID: "t1"}}))

	select {
	case ev := <-a.C:
		assert.Equal(t, "t1", ev.Transfer.ID)
	case <-time.After(time.Second):
		t.Fatal("expected event for owner 1")
	}
	select {
	case ev := <-b.C:
		t.Fatalf("owner 2 got %+v", ev)
	default:
	}

	a.Close()
	a.Close()
	_, open := <-a.C
	assert.False(t, open)
	assert.Equal(t, 0, hub.Subscribers(1))
	assert.Equal(t, 1, hub.Subscribers(2))
}

func TestBroadcasterForwardsTrackerEvents(t *testing.T) {
	tr, _, _ := newTestTracker()
	hub := NewHub(8)
	sub := hub.Subscribe(5)
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewBroadcaster(tr.Events(), hub).Run(ctx) }()

	_, err := tr.Record(context.Background(), Start{OwnerID: 5, Type: model.TransferDelete, FileName: "gone"}, nil)
	require.NoError(t, err)

	select {
	case ev := <-sub.C:
		assert.Equal(t, EventCreated, ev.Type)
		assert.Equal(t, model.TransferDelete, ev.Transfer.Type)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	cancel()
	assert.NoError(t, <-done)
}

func TestDecodeEvent(t *testing.T) {
	body, err := json.Marshal(Event{Type: EventProgress, OwnerID: 9, Transfer: model.TransferLog{ID: "x", Progress: 40}})
	require.NoError(t, err)
	ev, err := decodeEvent(string(body))
	require.NoError(t, err)
	assert.Equal(t, uint64(9), ev.OwnerID)
	assert.Equal(t, 40, ev.Transfer.Progress)

	_, err = decodeEvent(`{"type":"other"}`)
	assert.Error(t, err)
	_, err = decodeEvent(`not json`)
	assert.Error(t, err)
}
