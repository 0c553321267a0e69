package slidebar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Mode byte values understood by the slidebar controller. Only bits
// 0b10011001 are documented; the hardware may interpret others too, so no
// value is rejected on semantic grounds.
//
//	           released      touched
//	STD        heartbeat     lights follow the finger
//	ONMOV      no lights     lights follow the finger
//	LAST       at last pos   lights follow the finger
//	OFF        no lights     no lights
//
// In INT modes the controller raises keyboard interrupts on touch; in POLL
// modes it stays silent until asked. Writing ModeOneShot emits one position
// event if stale data is pending and drops to the POLL equivalent of the
// current state.
const (
	ModeStdInt   byte = 0b01001
	ModeOnMovInt byte = 0b10001
	ModeOffInt   byte = 0b01000
	ModeOneShot  byte = 0b10000000

	// ModeStateMask extracts the reported state from a mode read:
	// 0x00 LAST, 0x01 STD, 0x10 OFF, 0x11 ONMOV.
	ModeStateMask byte = 0x11
)

// ErrInvalidFormat is returned when a mode string is not a hexadecimal
// unsigned byte.
var ErrInvalidFormat = errors.New("slidebar: invalid mode format")

// ParseMode parses the external representation of a mode value: a hex string
// holding at most one byte, surrounding whitespace ignored. The value is
// forwarded to hardware as-is; bit patterns are documented, not enforced.
func ParseMode(text string) (byte, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, ErrInvalidFormat
	}
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, text)
	}
	return byte(v), nil
}

// FormatMode renders a mode byte in the external attribute representation.
func FormatMode(v byte) string {
	return fmt.Sprintf("%x\n", v)
}
