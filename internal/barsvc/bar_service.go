// Package barsvc runs the slidebar driver core: it installs the scancode
// filter into the keyboard service, reads positions over the register
// channel and emits input events through the virtual device.
package barsvc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/trotne/ideapad-slidebar/internal/configsvc"
	"github.com/trotne/ideapad-slidebar/internal/dmi"
	"github.com/trotne/ideapad-slidebar/internal/hwio"
	"github.com/trotne/ideapad-slidebar/internal/kbdsvc"
	"github.com/trotne/ideapad-slidebar/internal/uinput"
	"github.com/trotne/ideapad-slidebar/slidebar"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrUnsupportedMachine is returned when the DMI identity does not match a
// known slidebar-equipped model and force is not set.
var ErrUnsupportedMachine = errors.New("not a known slidebar-equipped machine")

// ErrNotStarted is returned by mode operations before the hardware channel
// has been acquired.
var ErrNotStarted = errors.New("slidebar hardware not initialized")

const lastModeKey = "slidebar/mode/last"

// Config is the hot-reloadable part of the driver configuration.
type Config struct {
	// Serio selects the keyboard port to tap, or "auto" for the first one.
	Serio string `json:"serio"`
	// Mode, when set, is a hex mode byte applied on load and on change.
	Mode string `json:"mode"`
	// Force skips the DMI machine check.
	Force bool `json:"force"`
}

var defaultOptions = serviceOptions{
	portPath:   hwio.DefaultPortPath,
	uinputPath: uinput.DefaultPath,
	retryDelay: 2 * time.Second,
}

type serviceOptions struct {
	portPath   string
	uinputPath string
	retryDelay time.Duration

	portBus hwio.PortBus
	sink    sinkCloser
	checker *dmi.Checker

	configSvc  *configsvc.Service
	configPath string
}

type sinkCloser interface {
	slidebar.EventSink
	io.Closer
}

type Option func(*serviceOptions)

func WithPortPath(path string) Option {
	return func(o *serviceOptions) { o.portPath = path }
}

func WithUinputPath(path string) Option {
	return func(o *serviceOptions) { o.uinputPath = path }
}

// WithPortBus injects a port bus instead of opening the port device.
func WithPortBus(bus hwio.PortBus) Option {
	return func(o *serviceOptions) { o.portBus = bus }
}

// WithEventSink injects an event sink instead of creating a uinput device.
func WithEventSink(sink sinkCloser) Option {
	return func(o *serviceOptions) { o.sink = sink }
}

func WithChecker(c *dmi.Checker) Option {
	return func(o *serviceOptions) { o.checker = c }
}

func WithRetryDelay(d time.Duration) Option {
	return func(o *serviceOptions) { o.retryDelay = d }
}

// WithConfigFile makes the service load its runtime configuration from a
// watched file, overriding the construction-time Config.
func WithConfigFile(svc *configsvc.Service, path string) Option {
	return func(o *serviceOptions) {
		o.configSvc = svc
		o.configPath = path
	}
}

type Service struct {
	log     *zap.Logger
	db      *badger.DB
	kbd     *kbdsvc.Service
	options serviceOptions
	ready   chan struct{}

	mu     sync.Mutex
	config Config

	channel    *hwio.Channel
	classifier slidebar.Classifier
	translator *slidebar.Translator

	bytesSeen  atomic.Uint64
	suppressed atomic.Uint64
	gestures   atomic.Uint64
}

func New(log *zap.Logger, db *badger.DB, kbd *kbdsvc.Service, config Config, opts ...Option) *Service {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.checker == nil {
		options.checker = dmi.NewChecker()
	}
	if config.Serio == "" {
		config.Serio = "auto"
	}
	return &Service{
		log:     log,
		db:      db,
		kbd:     kbd,
		config:  config,
		options: options,
		ready:   make(chan struct{}),
	}
}

// Start performs the all-or-nothing driver setup, then taps the keyboard
// stream until the context is cancelled. On any setup failure every already
// acquired resource is released in reverse order before the error is
// returned.
func (s *Service) Start(ctx context.Context) error {
	if s.options.configSvc != nil {
		select {
		case <-ctx.Done():
			return nil
		case <-s.options.configSvc.Ready():
		}
		s.mu.Lock()
		def := s.config
		s.mu.Unlock()
		cfg, err := configsvc.Register(s.options.configSvc, s.options.configPath, def, s.OnConfigChange)
		if err != nil {
			return fmt.Errorf("failed to register driver config: %w", err)
		}
		s.OnConfigChange(cfg, nil)
	}

	s.mu.Lock()
	force := s.config.Force
	s.mu.Unlock()
	if ident, ok := s.options.checker.Match(); ok {
		s.log.Info("Machine identified", zap.String("model", ident))
	} else if force {
		s.log.Warn("Unknown machine, continuing because force is set")
	} else {
		return ErrUnsupportedMachine
	}

	select {
	case <-ctx.Done():
		return nil
	case <-s.kbd.Ready():
	}

	teardown, err := s.setup()
	if err != nil {
		return err
	}
	defer teardown()

	s.applyStartupMode()

	close(s.ready)
	s.log.Info("Slidebar service started")

	s.runStream(ctx)

	s.log.Info("Slidebar service stopping",
		zap.Uint64("bytes", s.bytesSeen.Load()),
		zap.Uint64("suppressed", s.suppressed.Load()),
		zap.Uint64("gestures", s.gestures.Load()))
	return nil
}

// setup acquires port bus, event sink and keyboard filter in order and
// returns a teardown releasing them in reverse order.
func (s *Service) setup() (func(), error) {
	bus := s.options.portBus
	if bus == nil {
		var err error
		bus, err = hwio.OpenPortBus(s.options.portPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open port bus: %w", err)
		}
	}
	s.mu.Lock()
	s.channel = hwio.NewChannel(bus)
	s.mu.Unlock()

	sink := s.options.sink
	if sink == nil {
		dev, err := uinput.Open(s.log.Named("uinput"), s.options.uinputPath)
		if err != nil {
			err = fmt.Errorf("failed to create input device: %w", err)
			return nil, multierr.Append(err, s.channel.Close())
		}
		sink = dev
	}
	s.translator = slidebar.NewTranslator(sink, s.channel)

	removeFilter, err := s.kbd.InstallFilter(s.filterByte)
	if err != nil {
		err = fmt.Errorf("failed to install keyboard filter: %w", err)
		return nil, multierr.Append(err, multierr.Append(sink.Close(), s.channel.Close()))
	}

	return func() {
		removeFilter()
		if err := sink.Close(); err != nil {
			s.log.Warn("failed to close input device", zap.Error(err))
		}
		if err := s.channel.Close(); err != nil {
			s.log.Warn("failed to close port bus", zap.Error(err))
		}
	}, nil
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// filterByte is the keyboard filter callback. It runs on the delivery
// goroutine, so a move's position read completes before the next byte is
// classified.
func (s *Service) filterByte(b byte) bool {
	s.bytesSeen.Inc()
	res := s.classifier.Feed(b)
	if res.Suppress {
		s.suppressed.Inc()
	}
	if res.Gesture != slidebar.GestureNone {
		s.gestures.Inc()
		if err := s.translator.HandleGesture(res.Gesture); err != nil {
			s.log.Error("failed to translate gesture",
				zap.Stringer("gesture", res.Gesture), zap.Error(err))
		}
	}
	return res.Suppress
}

// runStream keeps a keyboard stream open, re-resolving the port after
// disconnects until the context is cancelled.
func (s *Service) runStream(ctx context.Context) {
	for {
		id, ok := s.resolveSerio()
		if ok {
			err := s.kbd.RunStream(ctx, id)
			if err != nil {
				s.log.Warn("keyboard stream ended", zap.String("id", id), zap.Error(err))
			}
			// a touch episode cannot survive a stream gap
			s.classifier.Reset()
			s.translator.Reset()
		}
		t := time.NewTimer(s.options.retryDelay)
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

func (s *Service) resolveSerio() (string, bool) {
	s.mu.Lock()
	serio := s.config.Serio
	s.mu.Unlock()
	if serio != "auto" {
		return serio, s.kbd.IsConnected(serio)
	}
	devices := s.kbd.Devices()
	if len(devices) == 0 {
		return "", false
	}
	return devices[0].ID, true
}

// applyStartupMode applies the configured mode, or failing that the last
// persisted one.
func (s *Service) applyStartupMode() {
	s.mu.Lock()
	mode := s.config.Mode
	s.mu.Unlock()
	if mode != "" {
		if err := s.ApplyMode(mode); err != nil {
			s.log.Error("failed to apply configured mode", zap.String("mode", mode), zap.Error(err))
		}
		return
	}
	last, err := s.loadLastMode()
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			s.log.Warn("failed to load persisted mode", zap.Error(err))
		}
		return
	}
	hw, err := s.hw()
	if err != nil {
		return
	}
	if err := hw.WriteMode(last); err != nil {
		s.log.Error("failed to reapply persisted mode", zap.Error(err))
		return
	}
	s.log.Info("Reapplied persisted mode", zap.String("mode", fmt.Sprintf("%#02x", last)))
}

func (s *Service) hw() (*hwio.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel == nil {
		return nil, ErrNotStarted
	}
	return s.channel, nil
}

// ApplyMode parses and writes a mode value, persisting it on success.
func (s *Service) ApplyMode(text string) error {
	v, err := slidebar.ParseMode(text)
	if err != nil {
		return err
	}
	hw, err := s.hw()
	if err != nil {
		return err
	}
	if err := hw.WriteMode(v); err != nil {
		return fmt.Errorf("failed to write mode: %w", err)
	}
	if err := s.storeLastMode(v); err != nil {
		s.log.Warn("failed to persist mode", zap.Error(err))
	}
	s.log.Info("Mode applied", zap.String("mode", fmt.Sprintf("%#02x", v)))
	return nil
}

// CurrentMode reads the mode register and returns its attribute
// representation.
func (s *Service) CurrentMode() (string, error) {
	hw, err := s.hw()
	if err != nil {
		return "", err
	}
	v, err := hw.ReadMode()
	if err != nil {
		return "", fmt.Errorf("failed to read mode: %w", err)
	}
	return slidebar.FormatMode(v), nil
}

// OnConfigChange applies a changed runtime configuration. Only the mode is
// hot-applied; serio selection takes effect on the next stream resolve.
func (s *Service) OnConfigChange(cfg Config, err error) {
	if err != nil {
		s.log.Error("failed to parse config", zap.Error(err))
		return
	}
	s.mu.Lock()
	modeChanged := cfg.Mode != "" && cfg.Mode != s.config.Mode
	if cfg.Serio == "" {
		cfg.Serio = "auto"
	}
	s.config = cfg
	s.mu.Unlock()
	if modeChanged {
		// before setup the mode is only recorded; applyStartupMode writes it
		if applyErr := s.ApplyMode(cfg.Mode); applyErr != nil && !errors.Is(applyErr, ErrNotStarted) {
			s.log.Error("rejected mode from config", zap.String("mode", cfg.Mode), zap.Error(applyErr))
		}
	}
}

func (s *Service) storeLastMode(v byte) error {
	if s.db == nil {
		return nil
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(lastModeKey), []byte{v})
	})
}

func (s *Service) loadLastMode() (byte, error) {
	if s.db == nil {
		return 0, badger.ErrKeyNotFound
	}
	var v byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(lastModeKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 1 {
				return fmt.Errorf("unexpected mode value length %d", len(val))
			}
			v = val[0]
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return v, nil
}
