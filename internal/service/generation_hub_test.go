package service

import (
	"courseforge_backend/internal/model"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveEvent(t *testing.T, sub *Subscriber) model.GenerationEvent {
	t.Helper()
	select {
	case ev := <-sub.Outbound:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return model.GenerationEvent{}
	}
}

func TestHubBroadcastsToAllSubscribers(t *testing.T) {
	hub := NewGenerationHub(nil, 30)

	a := hub.Subscribe("module:1")
	b := hub.Subscribe("module:1")
	other := hub.Subscribe("module:2")
	defer hub.Unsubscribe("module:1", a)
	defer hub.Unsubscribe("module:1", b)
	defer hub.Unsubscribe("module:2", other)

	hub.Publish("module:1", model.GenerationEvent{Type: model.EventLessonStart})

	assert.Equal(t, model.EventLessonStart, receiveEvent(t, a).Type)
	assert.Equal(t, model.EventLessonStart, receiveEvent(t, b).Type)

	select {
	case ev := <-other.Outbound:
		t.Fatalf("subscriber of another job received event %v", ev.Type)
	default:
	}
}

func TestHubPublishSetsJobID(t *testing.T) {
	hub := NewGenerationHub(nil, 30)
	sub := hub.Subscribe("module:7")
	defer hub.Unsubscribe("module:7", sub)

	hub.Publish("module:7", model.GenerationEvent{Type: model.EventStatus})
	assert.Equal(t, "module:7", receiveEvent(t, sub).JobID)
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewGenerationHub(nil, 30)

	a := hub.Subscribe("module:1")
	b := hub.Subscribe("module:1")
	hub.Unsubscribe("module:1", a)

	hub.Publish("module:1", model.GenerationEvent{Type: model.EventLessonStart})

	assert.Equal(t, model.EventLessonStart, receiveEvent(t, b).Type)
	assert.Equal(t, 1, hub.ClientCount("module:1"))

	select {
	case <-a.done:
	default:
		t.Fatal("unsubscribed stream should be closed")
	}
	hub.Unsubscribe("module:1", b)
}

func TestHubDropsStalledSubscriberOnly(t *testing.T) {
	hub := NewGenerationHub(nil, 30)

	stalled := hub.Subscribe("module:1")
	healthy := hub.Subscribe("module:1")
	defer hub.Unsubscribe("module:1", healthy)

	// 填满 stalled 的通道，下一次投递会把它摘除
	for i := 0; i < cap(stalled.Outbound); i++ {
		stalled.Outbound <- model.GenerationEvent{Type: model.EventStatus}
	}

	hub.Publish("module:1", model.GenerationEvent{Type: model.EventLessonStart})

	assert.Equal(t, 1, hub.ClientCount("module:1"))
	select {
	case <-stalled.done:
	default:
		t.Fatal("stalled stream should have been closed")
	}

	// 健康订阅者不受影响
	assert.Equal(t, model.EventLessonStart, receiveEvent(t, healthy).Type)
}

func TestHubCloseJob(t *testing.T) {
	hub := NewGenerationHub(nil, 30)

	a := hub.Subscribe("module:1")
	b := hub.Subscribe("module:1")

	hub.CloseJob("module:1")

	require.Equal(t, 0, hub.ClientCount("module:1"))
	for _, sub := range []*Subscriber{a, b} {
		select {
		case <-sub.done:
		default:
			t.Fatal("CloseJob should close every stream of the job")
		}
	}
}
