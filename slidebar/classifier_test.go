package slidebar

import "testing"

type step struct {
	b        byte
	gesture  Gesture
	suppress bool
}

func TestClassifierSequences(t *testing.T) {
	tests := []struct {
		name  string
		steps []step
	}{
		{
			name: "move sequence",
			steps: []step{
				{0xe0, GestureNone, false},
				{0x3b, GestureTouchDown, true},
			},
		},
		{
			name: "release sequence",
			steps: []step{
				{0xe0, GestureNone, false},
				{0xbb, GestureTouchUp, true},
			},
		},
		{
			name: "full episode",
			steps: []step{
				{0xe0, GestureNone, false},
				{0x3b, GestureTouchDown, true},
				{0xe0, GestureNone, false},
				{0x3b, GestureMove, true},
				{0xe0, GestureNone, false},
				{0x3b, GestureMove, true},
				{0xe0, GestureNone, false},
				{0xbb, GestureTouchUp, true},
			},
		},
		{
			name: "unrelated extended key passes through",
			steps: []step{
				{0xe0, GestureNone, false},
				{0x1c, GestureNone, false},
			},
		},
		{
			name: "stale prefix does not leak",
			steps: []step{
				{0xe0, GestureNone, false},
				{0x1c, GestureNone, false},
				{0x3b, GestureNone, false},
			},
		},
		{
			name: "move code without prefix is ordinary traffic",
			steps: []step{
				{0x3b, GestureNone, false},
				{0xbb, GestureNone, false},
			},
		},
		{
			name: "ordinary keys between gestures",
			steps: []step{
				{0xe0, GestureNone, false},
				{0x3b, GestureTouchDown, true},
				{0x1e, GestureNone, false},
				{0x9e, GestureNone, false},
				{0xe0, GestureNone, false},
				{0x3b, GestureMove, true},
			},
		},
	}

	for _, test := range tests {
		var c Classifier
		for i, s := range test.steps {
			res := c.Feed(s.b)
			if res.Gesture != s.gesture {
				t.Errorf("%s: byte %d (%#02x): gesture %s != %s", test.name, i, s.b, res.Gesture, s.gesture)
			}
			if res.Suppress != s.suppress {
				t.Errorf("%s: byte %d (%#02x): suppress %v != %v", test.name, i, s.b, res.Suppress, s.suppress)
			}
		}
	}
}

func TestClassifierTouchDedup(t *testing.T) {
	var c Classifier
	bytes := []byte{0xe0, 0x3b, 0xe0, 0x3b, 0xe0, 0x3b, 0xe0, 0xbb}
	var downs, moves, ups int
	for _, b := range bytes {
		switch c.Feed(b).Gesture {
		case GestureTouchDown:
			downs++
		case GestureMove:
			moves++
		case GestureTouchUp:
			ups++
		}
	}
	if downs != 1 || moves != 2 || ups != 1 {
		t.Errorf("downs=%d moves=%d ups=%d, expected 1/2/1", downs, moves, ups)
	}
	if c.Touched() {
		t.Error("classifier still touched after release")
	}
}

func TestClassifierReset(t *testing.T) {
	var c Classifier
	c.Feed(0xe0)
	c.Feed(0x3b)
	if !c.Touched() {
		t.Fatal("expected touched after move")
	}
	c.Reset()
	if c.Touched() {
		t.Error("touched after reset")
	}
	if res := c.Feed(0x3b); res.Gesture != GestureNone {
		t.Errorf("stale extended state after reset: %s", res.Gesture)
	}
}
