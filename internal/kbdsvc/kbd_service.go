// Package kbdsvc delivers the raw keyboard controller byte stream and hosts
// the filter chain through which the slidebar driver observes it.
//
// Bytes arrive one at a time, in arrival order. Every installed filter sees
// every byte; a filter that claims a byte suppresses it from the downstream
// handler, which stands in for the normal keyboard pipeline. Filters must
// never claim bytes they do not specifically recognize.
package kbdsvc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/trotne/ideapad-slidebar/pkg/bus"
	"go.uber.org/zap"
)

// Filter observes one byte and reports whether it is claimed. Filters are
// invoked serially, in installation order, on the delivery goroutine.
type Filter func(b byte) (suppress bool)

// Handler receives every byte no filter claimed.
type Handler func(b byte)

type (
	DeviceEventType uint8

	DeviceBusKey struct {
		Type DeviceEventType
		ID   string
	}
	DeviceBus        = bus.Bus[DeviceBusKey, DeviceEvent]
	DeviceSubscriber = bus.Subscriber[DeviceBusKey, DeviceEvent]
	DeviceEvent      struct{}

	SourceBus       = bus.Bus[string, SourceEvent]
	SourcePublisher = bus.Publisher[SourceEvent]
)

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
)

// SourceEvent reports keyboard port devices appearing or disappearing.
type SourceEvent struct {
	Connected    []SourceDevice
	Disconnected []string
}

type SourceDevice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ByteStream is an open raw keyboard port.
type ByteStream interface {
	io.ReadCloser
}

// Source is a backend that discovers keyboard ports and opens their raw byte
// streams.
type Source interface {
	Start(ctx context.Context, pub SourcePublisher) error
	Ready() <-chan struct{}
	Open(id string) (ByteStream, error)
}

var ErrDeviceNotConnected = errors.New("keyboard device not connected")

var defaultOptions = serviceOptions{
	backoffTimeout: 5 * time.Second,
}

type serviceOptions struct {
	backoffTimeout time.Duration
}

type Option func(*serviceOptions)

func WithBackoffTimeout(d time.Duration) Option {
	return func(o *serviceOptions) {
		o.backoffTimeout = d
	}
}

type Service struct {
	log     *zap.Logger
	source  Source
	options serviceOptions
	ready   chan struct{}

	sourceBus *SourceBus
	deviceBus *DeviceBus
	connected *xsync.MapOf[string, SourceDevice]

	mu      sync.Mutex
	filters []*filterEntry
	handler Handler
}

type filterEntry struct {
	f Filter
}

func New(log *zap.Logger, source Source, opts ...Option) *Service {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	return &Service{
		log:       log,
		source:    source,
		options:   options,
		ready:     make(chan struct{}),
		sourceBus: bus.NewBus[string, SourceEvent](log),
		deviceBus: bus.NewBus[DeviceBusKey, DeviceEvent](log),
		connected: xsync.NewMapOf[string, SourceDevice](),
	}
}

func (s *Service) Start(ctx context.Context) error {
	err := s.sourceBus.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start source bus: %w", err)
	}
	select {
	case <-ctx.Done():
		return nil
	case <-s.sourceBus.Ready():
	}

	err = s.deviceBus.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start device bus: %w", err)
	}
	select {
	case <-ctx.Done():
		return nil
	case <-s.deviceBus.Ready():
	}

	s.consumeEvents(ctx)
	go s.runSource(ctx)

	select {
	case <-ctx.Done():
		return nil
	case <-s.source.Ready():
	}
	close(s.ready)
	s.log.Info("Keyboard service started")
	<-ctx.Done()
	return nil
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

func (s *Service) runSource(ctx context.Context) {
	for {
		err := s.source.Start(ctx, s.publishSourceEvent)
		if err != nil {
			s.log.Error("failed to start the keyboard source", zap.Error(err))
		}
		t := time.NewTimer(s.options.backoffTimeout)
		// retry after backoff
		select {
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return
		case <-t.C:
		}
	}
}

func (s *Service) consumeEvents(ctx context.Context) {
	// subscribe before the source starts so no connect event is missed
	ch := s.sourceBus.Subscribe(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-ch:
				s.handleSourceEvent(ctx, msg.Message)
			}
		}
	}()
}

// publishSourceEvent is the publisher handed to the source. It updates the
// connected map on the publishing goroutine, so once the source reports ready
// its initial device set is already visible through Devices/IsConnected.
func (s *Service) publishSourceEvent(ctx context.Context, event SourceEvent) {
	for _, id := range event.Disconnected {
		s.connected.Delete(id)
	}
	for _, dev := range event.Connected {
		s.connected.Store(dev.ID, dev)
	}
	s.sourceBus.Publish(ctx, "source", event)
}

func (s *Service) handleSourceEvent(ctx context.Context, event SourceEvent) {
	for _, id := range event.Disconnected {
		s.log.Debug("keyboard port disconnected", zap.String("id", id))
		s.deviceBus.Publish(ctx, DeviceBusKey{Type: DeviceDisconnected, ID: id}, DeviceEvent{})
	}
	for _, dev := range event.Connected {
		s.log.Debug("keyboard port connected", zap.String("id", dev.ID), zap.String("name", dev.Name))
		s.deviceBus.Publish(ctx, DeviceBusKey{Type: DeviceConnected, ID: dev.ID}, DeviceEvent{})
	}
}

// Devices returns the currently connected keyboard ports.
func (s *Service) Devices() []SourceDevice {
	var devices []SourceDevice
	s.connected.Range(func(_ string, dev SourceDevice) bool {
		devices = append(devices, dev)
		return true
	})
	return devices
}

// IsConnected reports whether the keyboard port is currently present.
func (s *Service) IsConnected(id string) bool {
	_, ok := s.connected.Load(id)
	return ok
}

// SubscribeDevices returns a subscriber for connect/disconnect events.
func (s *Service) SubscribeDevices(keys ...DeviceBusKey) DeviceSubscriber {
	return s.deviceBus.CreateSubscriber(keys...)
}

// InstallFilter adds a filter to the chain and returns its removal function.
// Removal is idempotent.
func (s *Service) InstallFilter(f Filter) (func(), error) {
	if f == nil {
		return nil, errors.New("nil filter")
	}
	entry := &filterEntry{f: f}
	s.mu.Lock()
	s.filters = append(s.filters, entry)
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			// dispatch iterates a snapshot of the old slice; never mutate
			// its backing array
			filters := make([]*filterEntry, 0, len(s.filters))
			for _, e := range s.filters {
				if e != entry {
					filters = append(filters, e)
				}
			}
			s.filters = filters
		})
	}, nil
}

// SetHandler installs the downstream consumer for unsuppressed bytes.
func (s *Service) SetHandler(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// dispatch runs one byte through the filter chain and, if nothing claimed
// it, hands it to the downstream handler.
func (s *Service) dispatch(b byte) {
	s.mu.Lock()
	filters := s.filters
	handler := s.handler
	s.mu.Unlock()

	suppressed := false
	for _, e := range filters {
		if e.f(b) {
			suppressed = true
		}
	}
	if !suppressed && handler != nil {
		handler(b)
	}
}

// RunStream opens the keyboard port and pumps its bytes through the filter
// chain until the context is cancelled or the stream fails.
func (s *Service) RunStream(ctx context.Context, id string) error {
	if !s.IsConnected(id) {
		return fmt.Errorf("%w: %s", ErrDeviceNotConnected, id)
	}
	stream, err := s.source.Open(id)
	if err != nil {
		return fmt.Errorf("failed to open keyboard port %s: %w", id, err)
	}
	defer stream.Close()

	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-ctx.Done():
			stream.Close()
		case <-readDone:
		}
	}()

	buf := make([]byte, 1)
	for {
		_, err := stream.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("keyboard port %s read failed: %w", id, err)
		}
		s.dispatch(buf[0])
	}
}
