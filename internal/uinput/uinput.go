// Package uinput emits slidebar input events through a virtual evdev device
// created via /dev/uinput.
package uinput

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// uinput.h and input-event-codes.h constants.
const (
	maxNameSize = 80
	absSize     = 64

	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
	uiSetAbsBit  = 0x40045567

	evSyn = 0x00
	evKey = 0x01
	evAbs = 0x03

	synReport = 0x00
	btnTouch  = 0x14a
	absX      = 0x00

	busHost = 0x19
)

// DefaultPath is where the uinput character device usually lives.
const DefaultPath = "/dev/uinput"

// DeviceName matches the name the in-kernel driver registers, so downstream
// consumers treat both the same way.
const DeviceName = "IdeaPad Slidebar"

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

type userDev struct {
	Name       [maxNameSize]byte
	ID         inputID
	EffectsMax uint32
	Absmax     [absSize]int32
	Absmin     [absSize]int32
	Absfuzz    [absSize]int32
	Absflat    [absSize]int32
}

type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// Device is a virtual slidebar input device: one touch button and one
// absolute axis, 0..255. It implements slidebar.EventSink.
type Device struct {
	log  *zap.Logger
	file *os.File
}

// Open creates the virtual device. The returned Device must be closed to
// unregister it from the kernel.
func Open(log *zap.Logger, path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0660)
	if err != nil {
		return nil, fmt.Errorf("failed to open uinput device %s: %w", path, err)
	}
	if err := setup(f); err != nil {
		f.Close()
		return nil, err
	}
	log.Debug("virtual input device created", zap.String("name", DeviceName))
	return &Device{log: log, file: f}, nil
}

func setup(f *os.File) error {
	if err := ioctl(f, uiSetEvBit, evKey); err != nil {
		return fmt.Errorf("failed to enable key events: %w", err)
	}
	if err := ioctl(f, uiSetKeyBit, btnTouch); err != nil {
		return fmt.Errorf("failed to enable touch button: %w", err)
	}
	if err := ioctl(f, uiSetEvBit, evAbs); err != nil {
		return fmt.Errorf("failed to enable absolute events: %w", err)
	}
	if err := ioctl(f, uiSetAbsBit, absX); err != nil {
		return fmt.Errorf("failed to enable position axis: %w", err)
	}

	dev := userDev{
		ID: inputID{
			Bustype: busHost,
			Version: 1,
		},
	}
	copy(dev.Name[:], DeviceName)
	dev.Absmin[absX] = 0
	dev.Absmax[absX] = 0xff

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, dev); err != nil {
		return fmt.Errorf("failed to encode device setup: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write device setup: %w", err)
	}
	if err := ioctl(f, uiDevCreate, 0); err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

func ioctl(f *os.File, req uintptr, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), req, arg)
	if errno != 0 {
		return errno
	}
	return nil
}

func (d *Device) writeEvent(typ, code uint16, value int32) error {
	ev := inputEvent{Type: typ, Code: code, Value: value}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, ev); err != nil {
		return fmt.Errorf("failed to encode input event: %w", err)
	}
	if _, err := d.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write input event: %w", err)
	}
	return nil
}

func (d *Device) ReportTouch(pressed bool) error {
	v := int32(0)
	if pressed {
		v = 1
	}
	return d.writeEvent(evKey, btnTouch, v)
}

func (d *Device) ReportPosition(pos byte) error {
	return d.writeEvent(evAbs, absX, int32(pos))
}

func (d *Device) Sync() error {
	return d.writeEvent(evSyn, synReport, 0)
}

// Close unregisters the virtual device and closes the file.
func (d *Device) Close() error {
	if err := ioctl(d.file, uiDevDestroy, 0); err != nil {
		d.log.Warn("failed to destroy virtual device", zap.Error(err))
	}
	return d.file.Close()
}
