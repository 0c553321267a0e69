package hwio

import "sync"

// Slidebar controller registers are reached through an indirection protocol:
// two select bytes on the control ports, then the data byte on the data port.
// The select sequence is not idempotent, so one lock guards the whole channel
// rather than individual registers.
const (
	ctrlPortHigh uint16 = 0xff29
	ctrlPortLow  uint16 = 0xff2a
	dataPort     uint16 = 0xff2b

	selPositionHigh byte = 0xf4
	selPositionLow  byte = 0xbf
	selModeHigh     byte = 0xf7
	selModeLow      byte = 0x8b
)

// Channel is exclusive access to the slidebar position and mode registers.
// Each operation is atomic with respect to every other operation on the same
// Channel; the lock spans exactly one logical register access.
type Channel struct {
	mu  sync.Mutex
	bus PortBus
}

func NewChannel(bus PortBus) *Channel {
	return &Channel{bus: bus}
}

func (c *Channel) selectRegister(hi, lo byte) error {
	if err := c.bus.Outb(ctrlPortHigh, hi); err != nil {
		return err
	}
	return c.bus.Outb(ctrlPortLow, lo)
}

// ReadPosition returns the current finger position, 0..255.
func (c *Channel) ReadPosition() (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.selectRegister(selPositionHigh, selPositionLow); err != nil {
		return 0, err
	}
	return c.bus.Inb(dataPort)
}

// ReadMode returns the current LED/input mode byte.
func (c *Channel) ReadMode() (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.selectRegister(selModeHigh, selModeLow); err != nil {
		return 0, err
	}
	return c.bus.Inb(dataPort)
}

// WriteMode sets the LED/input mode byte. Any value is forwarded; the
// controller ignores bits it does not understand.
func (c *Channel) WriteMode(v byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.selectRegister(selModeHigh, selModeLow); err != nil {
		return err
	}
	return c.bus.Outb(dataPort, v)
}

// Close releases the underlying port bus.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bus.Close()
}
