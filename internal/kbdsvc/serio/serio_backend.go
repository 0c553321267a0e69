// Package serio discovers raw keyboard controller ports exposed through the
// kernel's serio_raw interface and opens their byte streams.
package serio

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jochenvg/go-udev"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/trotne/ideapad-slidebar/internal/kbdsvc"
	"go.uber.org/zap"
)

var defaultBackendOptions = backendOptions{
	pollInterval: 1 * time.Second,
}

type backendOptions struct {
	pollInterval time.Duration
}

type Option func(*backendOptions)

func WithPollInterval(d time.Duration) Option {
	return func(o *backendOptions) {
		o.pollInterval = d
	}
}

// Backend implements kbdsvc.Source using udev to enumerate serio_raw nodes.
// serio_raw devices register as misc character devices named serio_rawN.
type Backend struct {
	log     *zap.Logger
	options backendOptions

	devices *xsync.MapOf[string, deviceInfo]

	udev *udev.Udev

	ready chan struct{}

	publisher kbdsvc.SourcePublisher
}

type deviceInfo struct {
	node string
	name string
}

func NewBackend(log *zap.Logger, opts ...Option) *Backend {
	options := defaultBackendOptions
	for _, opt := range opts {
		opt(&options)
	}
	return &Backend{
		log:     log,
		options: options,
		ready:   make(chan struct{}),
		devices: xsync.NewMapOf[string, deviceInfo](),
	}
}

func (b *Backend) Ready() <-chan struct{} {
	return b.ready
}

func (b *Backend) Start(ctx context.Context, publisher kbdsvc.SourcePublisher) error {
	b.udev = &udev.Udev{}
	b.publisher = publisher

	b.log.Info("Starting serio backend")
	err := b.refreshDevices(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate serio devices: %w", err)
	}

	close(b.ready)
	b.log.Info("serio backend started")

	pollTicker := time.NewTicker(b.options.pollInterval)
	defer pollTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pollTicker.C:
			err := b.refreshDevices(ctx)
			if err != nil {
				b.log.Error("failed to refresh serio devices", zap.Error(err))
				continue
			}
		}
	}
}

func (b *Backend) refreshDevices(ctx context.Context) error {
	newDevices, err := b.enumerateDevices()
	if err != nil {
		return err
	}
	var disconnected []string
	var connected []kbdsvc.SourceDevice
	b.devices.Range(func(id string, _ deviceInfo) bool {
		if _, ok := newDevices[id]; !ok {
			disconnected = append(disconnected, id)
			b.devices.Delete(id)
			return true
		}
		delete(newDevices, id)
		return true
	})

	for id, dev := range newDevices {
		b.devices.Store(id, dev)
		connected = append(connected, kbdsvc.SourceDevice{
			ID:   id,
			Name: dev.name,
		})
	}

	if len(connected) > 0 || len(disconnected) > 0 {
		b.publisher(ctx, kbdsvc.SourceEvent{
			Connected:    connected,
			Disconnected: disconnected,
		})
	}

	return nil
}

func (b *Backend) enumerateDevices() (map[string]deviceInfo, error) {
	e := b.udev.NewEnumerate()
	e.AddMatchSubsystem("misc")
	devices, err := e.Devices()
	if err != nil {
		return nil, fmt.Errorf("udev enumerate failed: %w", err)
	}
	found := make(map[string]deviceInfo)
	for _, dev := range devices {
		sysname := dev.Sysname()
		if !strings.HasPrefix(sysname, "serio_raw") {
			continue
		}
		node := dev.Devnode()
		if node == "" {
			node = "/dev/" + sysname
		}
		found[sysname] = deviceInfo{
			node: node,
			name: fmt.Sprintf("i8042 raw port %s", sysname),
		}
	}
	return found, nil
}

// Enumerate lists serio_raw nodes present right now, without a running
// backend. Used by the CLI.
func Enumerate() ([]kbdsvc.SourceDevice, error) {
	b := &Backend{udev: &udev.Udev{}}
	found, err := b.enumerateDevices()
	if err != nil {
		return nil, err
	}
	devices := make([]kbdsvc.SourceDevice, 0, len(found))
	for id, dev := range found {
		devices = append(devices, kbdsvc.SourceDevice{ID: id, Name: dev.name})
	}
	return devices, nil
}

func (b *Backend) Open(id string) (kbdsvc.ByteStream, error) {
	info, ok := b.devices.Load(id)
	if !ok {
		return nil, fmt.Errorf("serio device not found: %s", id)
	}
	f, err := os.OpenFile(info.node, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", info.node, err)
	}
	return f, nil
}
