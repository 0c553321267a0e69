package slidebar

import (
	"errors"
	"testing"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in    string
		value byte
		ok    bool
	}{
		{"1", 0x01, true},
		{"99", 0x99, true},
		{"ff", 0xff, true},
		{"FF", 0xff, true},
		{"0", 0x00, true},
		{"9\n", 0x09, true},
		{"  11 ", 0x11, true},
		{"gg", 0, false},
		{"100", 0, false},
		{"", 0, false},
		{"\n", 0, false},
		{"-1", 0, false},
		{"1 2", 0, false},
	}

	for i, test := range tests {
		v, err := ParseMode(test.in)
		if test.ok {
			if err != nil {
				t.Errorf("%d: ParseMode(%q): %v", i, test.in, err)
				continue
			}
			if v != test.value {
				t.Errorf("%d: ParseMode(%q) = %#02x, expected %#02x", i, test.in, v, test.value)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("%d: ParseMode(%q) = %v, expected ErrInvalidFormat", i, test.in, err)
		}
	}
}

func TestFormatMode(t *testing.T) {
	if s := FormatMode(0x99); s != "99\n" {
		t.Errorf("FormatMode(0x99) = %q", s)
	}
	if s := FormatMode(0x09); s != "9\n" {
		t.Errorf("FormatMode(0x09) = %q", s)
	}
}

func TestModeRoundTrip(t *testing.T) {
	for _, v := range []byte{ModeStdInt, ModeOnMovInt, ModeOffInt, ModeOneShot} {
		parsed, err := ParseMode(FormatMode(v))
		if err != nil {
			t.Errorf("round trip %#02x: %v", v, err)
			continue
		}
		if parsed != v {
			t.Errorf("round trip %#02x = %#02x", v, parsed)
		}
	}
}
