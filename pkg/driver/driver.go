// Package driver wires the slidebar services together and runs them.
package driver

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger"
	"github.com/trotne/ideapad-slidebar/internal/barsvc"
	"github.com/trotne/ideapad-slidebar/internal/configsvc"
	"github.com/trotne/ideapad-slidebar/internal/hwio"
	"github.com/trotne/ideapad-slidebar/internal/kbdsvc"
	"github.com/trotne/ideapad-slidebar/internal/kbdsvc/serio"
	"github.com/trotne/ideapad-slidebar/internal/uinput"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

type Driver struct {
	config Config

	log       *zap.Logger
	db        *badger.DB
	configSvc *configsvc.Service
	kbdSvc    *kbdsvc.Service
	barSvc    *barsvc.Service
}

func New(config Config) (*Driver, error) {
	loggerConfig := zap.NewDevelopmentConfig()
	loggerConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000000")
	loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	dbOptions := badger.DefaultOptions(filepath.Join(config.DataDir, "db"))
	dbOptions.Logger = &badgerLogger{l: logger.Named("badger")}

	db, err := badger.Open(dbOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	configSvc := configsvc.New(logger.Named("config"))
	serioBackend := serio.NewBackend(logger.Named("kbd.serio"))
	kbdSvc := kbdsvc.New(logger.Named("kbd"), serioBackend)

	if config.PortPath == "" {
		config.PortPath = hwio.DefaultPortPath
	}
	if config.UinputPath == "" {
		config.UinputPath = uinput.DefaultPath
	}
	barSvc := barsvc.New(logger.Named("slidebar"), db, kbdSvc,
		barsvc.Config{Force: config.Force},
		barsvc.WithPortPath(config.PortPath),
		barsvc.WithUinputPath(config.UinputPath),
		barsvc.WithConfigFile(configSvc, config.DriverConfig),
	)

	return &Driver{
		config:    config,
		log:       logger,
		db:        db,
		configSvc: configSvc,
		kbdSvc:    kbdSvc,
		barSvc:    barSvc,
	}, nil
}

func (d *Driver) Close() error {
	return d.db.Close()
}

type badgerLogger struct {
	l *zap.Logger
}

func (l badgerLogger) Errorf(msg string, args ...any) {
	l.l.Error(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Warningf(msg string, args ...any) {
	l.l.Warn(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Infof(msg string, args ...any) {
	l.l.Info(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Debugf(msg string, args ...any) {
	l.l.Debug(fmt.Sprintf(msg, args...))
}

// Run starts the driver and blocks until the context is cancelled. Startup
// fails on unknown hardware (unless forced) and when a required device node
// cannot be acquired; partial acquisitions are released before the error is
// returned.
func (d *Driver) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return d.configSvc.Start(groupCtx)
	})
	group.Go(func() error {
		return d.kbdSvc.Start(groupCtx)
	})
	group.Go(func() error {
		return d.barSvc.Start(groupCtx)
	})

	err := group.Wait()
	if err != nil {
		return fmt.Errorf("driver failed: %w", err)
	}
	return nil
}

// Slidebar exposes the mode configuration surface.
func (d *Driver) Slidebar() *barsvc.Service {
	return d.barSvc
}

// Keyboard exposes the keyboard port service.
func (d *Driver) Keyboard() *kbdsvc.Service {
	return d.kbdSvc
}
