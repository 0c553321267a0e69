package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := NewBus[string, int](zap.NewNop())
	if err := b.Start(ctx); err != nil {
		t.Fatal(err)
	}
	<-b.Ready()

	global := b.Subscribe(ctx)
	keyed := b.Subscribe(ctx, "a")

	recv := func(ch <-chan Message[string, int]) Message[string, int] {
		t.Helper()
		select {
		case msg := <-ch:
			return msg
		case <-time.After(2 * time.Second):
			t.Fatal("subscriber timed out")
			return Message[string, int]{}
		}
	}

	// the worker delivers to global subscribers before keyed ones
	go b.Publish(ctx, "a", 1)
	if msg := recv(global); msg.Message != 1 {
		t.Errorf("global got %v, expected 1", msg.Message)
	}
	if msg := recv(keyed); msg.Key != "a" || msg.Message != 1 {
		t.Errorf("keyed got %v/%v, expected a/1", msg.Key, msg.Message)
	}

	// a message for another key skips the keyed subscriber
	go b.Publish(ctx, "b", 2)
	if msg := recv(global); msg.Key != "b" || msg.Message != 2 {
		t.Errorf("global got %v/%v, expected b/2", msg.Key, msg.Message)
	}
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := NewBus[string, int](zap.NewNop())
	if err := b.Start(ctx); err != nil {
		t.Fatal(err)
	}
	<-b.Ready()

	subCtx, subCancel := context.WithCancel(ctx)
	global := b.Subscribe(subCtx)
	keyed := b.Subscribe(subCtx, "k")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			b.Publish(ctx, "k", i)
		}
	}()

	// take a few messages, then drop both subscribers mid-stream
	for i := 0; i < 3; i++ {
		select {
		case <-global:
		case <-time.After(2 * time.Second):
			t.Fatal("global subscriber starved")
		}
		select {
		case <-keyed:
		case <-time.After(2 * time.Second):
			t.Fatal("keyed subscriber starved")
		}
	}
	subCancel()

	// the worker must finish the remaining sends without panicking on the
	// dropped subscribers
	wg.Wait()
}
