// Package hwio implements the slidebar register protocol over x86 port I/O.
// It is the only package that touches hardware-mapped addresses.
package hwio

import (
	"fmt"
	"os"
)

// PortBus is byte-wide access to x86 I/O ports.
type PortBus interface {
	Outb(port uint16, v byte) error
	Inb(port uint16) (byte, error)
	Close() error
}

// DefaultPortPath is the standard Linux userspace route to I/O ports.
const DefaultPortPath = "/dev/port"

type devPortBus struct {
	f *os.File
}

// OpenPortBus opens a PortBus backed by a port device file, where the file
// offset selects the port address. Requires CAP_SYS_RAWIO.
func OpenPortBus(path string) (PortBus, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open port device %s: %w", path, err)
	}
	return &devPortBus{f: f}, nil
}

func (b *devPortBus) Outb(port uint16, v byte) error {
	_, err := b.f.WriteAt([]byte{v}, int64(port))
	if err != nil {
		return fmt.Errorf("outb %#02x -> %#04x: %w", v, port, err)
	}
	return nil
}

func (b *devPortBus) Inb(port uint16) (byte, error) {
	buf := []byte{0}
	_, err := b.f.ReadAt(buf, int64(port))
	if err != nil {
		return 0, fmt.Errorf("inb %#04x: %w", port, err)
	}
	return buf[0], nil
}

func (b *devPortBus) Close() error {
	return b.f.Close()
}
