// Package bus is a small keyed pub/sub used to fan out device lifecycle
// events between services.
package bus

import (
	"context"
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

type key interface {
	comparable
}

type message interface {
	any
}

type Message[K key, M message] struct {
	Key     K
	Message M
}

type Publisher[M message] func(ctx context.Context, msg M)
type Subscriber[K key, M message] func(ctx context.Context) <-chan Message[K, M]

// Bus delivers messages to key-scoped and global subscribers. Delivery is
// ordered per bus: a single worker drains the publish channel.
type Bus[K key, M message] struct {
	log         *zap.Logger
	concurrency int
	ready       chan struct{}

	ch         chan Message[K, M]
	keySubs    *xsync.MapOf[K, map[*subscription[K, M]]struct{}]
	globalSubs *xsync.MapOf[*subscription[K, M], struct{}]
}

// subscription pairs a delivery channel with a done signal. The worker selects
// on done so an unsubscribe can never race a send; the message channel itself
// is never closed.
type subscription[K key, M message] struct {
	ch   chan Message[K, M]
	done chan struct{}
}

func NewBus[K key, M message](logger *zap.Logger) *Bus[K, M] {
	return &Bus[K, M]{
		log:         logger,
		ready:       make(chan struct{}),
		concurrency: 1,

		ch:         make(chan Message[K, M]),
		keySubs:    xsync.NewMapOf[K, map[*subscription[K, M]]struct{}](),
		globalSubs: xsync.NewMapOf[*subscription[K, M], struct{}](),
	}
}

func (b *Bus[K, M]) Start(ctx context.Context) error {
	if b.concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	for i := 0; i < b.concurrency; i++ {
		b.startWorker(ctx)
	}
	close(b.ready)
	return nil
}

func (b *Bus[K, M]) startWorker(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-b.ch:
				b.process(ctx, msg)
			}
		}
	}()
}

func (b *Bus[K, M]) Ready() <-chan struct{} {
	return b.ready
}

func (b *Bus[K, M]) Publish(ctx context.Context, key K, msg M) {
	select {
	case <-ctx.Done():
		return
	case b.ch <- Message[K, M]{key, msg}:
	}
}

func (b *Bus[K, M]) CreatePublisher(key K) Publisher[M] {
	return func(ctx context.Context, msg M) {
		b.Publish(ctx, key, msg)
	}
}

func (b *Bus[K, M]) CreateSubscriber(key ...K) Subscriber[K, M] {
	return func(ctx context.Context) <-chan Message[K, M] {
		return b.Subscribe(ctx, key...)
	}
}

func (b *Bus[K, M]) process(ctx context.Context, msg Message[K, M]) {
	b.globalSubs.Range(func(sub *subscription[K, M], _ struct{}) bool {
		select {
		case <-ctx.Done():
			return false
		case <-sub.done:
		case sub.ch <- msg:
		}
		return true
	})
	subs, ok := b.keySubs.Load(msg.Key)
	if !ok {
		return
	}
	for sub := range subs {
		select {
		case <-ctx.Done():
			return
		case <-sub.done:
		case sub.ch <- msg:
		}
	}
}

// Subscribe returns a channel of messages for the given keys, or for all keys
// when none are given. Delivery stops when ctx is cancelled; the channel is
// never closed, so receivers must select on their own ctx.
func (b *Bus[K, M]) Subscribe(ctx context.Context, key ...K) <-chan Message[K, M] {
	sub := &subscription[K, M]{
		ch:   make(chan Message[K, M]),
		done: make(chan struct{}),
	}
	if len(key) == 0 {
		b.globalSubs.Store(sub, struct{}{})
		go func() {
			<-ctx.Done()
			b.globalSubs.Delete(sub)
			close(sub.done)
		}()
		return sub.ch
	}
	// the worker ranges over loaded sets without a lock, so membership
	// changes build a fresh map instead of mutating the shared one
	for _, k := range key {
		b.keySubs.Compute(k, func(val map[*subscription[K, M]]struct{}, _ bool) (map[*subscription[K, M]]struct{}, bool) {
			next := make(map[*subscription[K, M]]struct{}, len(val)+1)
			for s := range val {
				next[s] = struct{}{}
			}
			next[sub] = struct{}{}
			return next, false
		})
	}
	go func() {
		<-ctx.Done()
		for _, k := range key {
			b.keySubs.Compute(k, func(val map[*subscription[K, M]]struct{}, _ bool) (map[*subscription[K, M]]struct{}, bool) {
				next := make(map[*subscription[K, M]]struct{}, len(val))
				for s := range val {
					if s != sub {
						next[s] = struct{}{}
					}
				}
				return next, false
			})
		}
		close(sub.done)
	}()
	return sub.ch
}
