package dispatcher

import (
	"sync"
	"testing"
	"time"

	"github.com/nirv/nirv/pkg/types"
)

func registered(objectType string) Event {
	return Event{
		Type:          ConnectorRegistered,
		ObjectType:    objectType,
		ConnectorName: objectType + "_0",
		ConnectorType: types.ConnectorMock,
		Timestamp:     time.Now(),
	}
}

func TestNotifier_PublishNoSubscribers(t *testing.T) {
	n := NewNotifier(8)
	// Must neither panic nor block.
	n.Publish(registered("mock"))
}

func TestNotifier_SubscriberReceivesEvent(t *testing.T) {
	n := NewNotifier(8)
	sub := n.Subscribe()

	n.Publish(registered("mock"))

	select {
	case ev := <-sub.Ch:
		if ev.ObjectType != "mock" || ev.Type != ConnectorRegistered {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}
}

func TestNotifier_Filter(t *testing.T) {
	n := NewNotifier(8)
	sub := n.Subscribe("file")

	n.Publish(registered("mock"))
	n.Publish(registered("file"))

	select {
	case ev := <-sub.Ch:
		if ev.ObjectType != "file" {
			t.Fatalf("filtered subscriber got %q", ev.ObjectType)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive matching event")
	}

	select {
	case ev := <-sub.Ch:
		t.Fatalf("unexpected extra event %+v", ev)
	default:
	}
}

func TestNotifier_FullChannelDropsEvent(t *testing.T) {
	n := NewNotifier(1)
	sub := n.Subscribe()
	sub.Ch <- registered("fill")

	done := make(chan struct{})
	go func() {
		n.Publish(registered("mock"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if ev := <-sub.Ch; ev.ObjectType != "fill" {
		t.Errorf("expected the buffered event, got %q", ev.ObjectType)
	}
}

func TestNotifier_Unsubscribe(t *testing.T) {
	n := NewNotifier(8)
	a := n.Subscribe()
	b := n.Subscribe()
	if a.ID == b.ID {
		t.Fatalf("duplicate subscriber id %q", a.ID)
	}

	n.Unsubscribe(a.ID)
	if _, ok := <-a.Ch; ok {
		t.Error("unsubscribed channel should be closed")
	}

	n.Publish(registered("mock"))
	if ev := <-b.Ch; ev.ObjectType != "mock" {
		t.Errorf("remaining subscriber got %+v", ev)
	}

	// Unknown ids are ignored.
	n.Unsubscribe("sub_404")
}

func TestNotifier_DeliverAfterClose(t *testing.T) {
	n := NewNotifier(8)
	sub := n.Subscribe()

	// Publish may hold a subscriber it loaded just before Unsubscribe ran.
	n.Unsubscribe(sub.ID)
	sub.deliver(registered("mock"))
	sub.close()

	if _, ok := <-sub.Ch; ok {
		t.Error("closed subscriber should not receive events")
	}
}

func TestNotifier_ConcurrentPublishUnsubscribe(t *testing.T) {
	n := NewNotifier(1)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		sub := n.Subscribe()
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				n.Publish(registered("mock"))
			}
		}()
		go func() {
			defer wg.Done()
			n.Unsubscribe(sub.ID)
		}()
	}
	wg.Wait()
}

func TestEventType_String(t *testing.T) {
	if ConnectorRegistered.String() != "registered" || ConnectorUnregistered.String() != "unregistered" {
		t.Errorf("got %q, %q", ConnectorRegistered, ConnectorUnregistered)
	}
}
