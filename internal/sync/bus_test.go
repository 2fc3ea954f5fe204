package sync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kestrelvaluation/securechat/internal/models"
)

func TestMemoryBusDelivers(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	var got []Event
	sub, err := bus.SubscribeRoom("room-1", func(ev Event) {
		got = append(got, ev)
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()

	ev := Event{Kind: KindMessage, RoomID: "room-1", Message: &models.Message{ID: "m1"}}
	if err := bus.PublishRoom(ctx, "room-1", ev); err != nil {
		t.Fatal(err)
	}
	if err := bus.PublishRoom(ctx, "room-2", ev); err != nil {
		t.Fatal(err)
	}

	if len(got) != 1 {
		t.Fatalf("expected 1 delivery to room-1 subscriber, got %d", len(got))
	}
	if got[0].Message.ID != "m1" {
		t.Fatalf("wrong event delivered: %+v", got[0])
	}
}

func TestMemoryBusRoomListSubjects(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	var aliceEvents, bobEvents int
	subA, _ := bus.SubscribeRoomList("alice", func(Event) { aliceEvents++ })
	subB, _ := bus.SubscribeRoomList("bob", func(Event) { bobEvents++ })
	defer subA.Cancel()
	defer subB.Cancel()

	if err := bus.PublishRoomList(ctx, "alice", Event{Kind: KindRoomUpdated}); err != nil {
		t.Fatal(err)
	}
	if aliceEvents != 1 || bobEvents != 0 {
		t.Fatalf("room list events crossed users: alice=%d bob=%d", aliceEvents, bobEvents)
	}
}

func TestCancelIsSynchronous(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	var deliveries int32
	var mu sync.Mutex

	sub, err := bus.SubscribeRoom("room-1", func(Event) {
		mu.Lock()
		deliveries++
		mu.Unlock()
		close(entered)
		<-release
	})
	if err != nil {
		t.Fatal(err)
	}

	// Park a delivery inside the handler.
	go bus.PublishRoom(ctx, "room-1", Event{Kind: KindMessage})
	<-entered

	// Cancel must block until the in-flight handler returns.
	cancelled := make(chan struct{})
	go func() {
		sub.Cancel()
		close(cancelled)
	}()

	select {
	case <-cancelled:
		t.Fatal("cancel returned while a handler was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("cancel did not return after the handler finished")
	}

	// Publishes after cancel must not reach the handler.
	if err := bus.PublishRoom(ctx, "room-1", Event{Kind: KindMessage}); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	n := deliveries
	mu.Unlock()
	if n != 1 {
		t.Fatalf("handler ran %d times, want 1", n)
	}
}

func TestPublishWithNoSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	if err := bus.PublishRoom(context.Background(), "room-1", Event{Kind: KindMessage}); err != nil {
		t.Fatal(err)
	}
}

func TestConcurrentPublishSerializedPerSubscription(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	var inHandler, max, count int
	var mu sync.Mutex
	sub, _ := bus.SubscribeRoom("room-1", func(Event) {
		mu.Lock()
		inHandler++
		if inHandler > max {
			max = inHandler
		}
		count++
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		inHandler--
		mu.Unlock()
	})
	defer sub.Cancel()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.PublishRoom(ctx, "room-1", Event{Kind: KindMessage})
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if max > 1 {
		t.Fatalf("handler ran %d times concurrently, subscriptions deliver serially", max)
	}
	if count != 10 {
		t.Fatalf("expected 10 deliveries, got %d", count)
	}
}
