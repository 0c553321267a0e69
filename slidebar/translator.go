package slidebar

// EventSink receives translated input events. The production implementation
// is a virtual evdev device; tests substitute a recorder.
type EventSink interface {
	// ReportTouch reports the touch button state.
	ReportTouch(pressed bool) error
	// ReportPosition reports the absolute finger position, 0..255.
	ReportPosition(pos byte) error
	// Sync marks the end of a coherent batch of events.
	Sync() error
}

// PositionReader yields the current finger position from the hardware.
type PositionReader interface {
	ReadPosition() (byte, error)
}

// Translator turns gestures into input events. It keeps the last reported
// touch state so the touch press is signaled exactly once per touch episode
// rather than on every move.
type Translator struct {
	sink    EventSink
	pos     PositionReader
	touched bool
}

func NewTranslator(sink EventSink, pos PositionReader) *Translator {
	return &Translator{sink: sink, pos: pos}
}

// HandleGesture emits the event batch for a single gesture. A position read
// happens only while a touch episode is active or being initiated, never on
// release.
func (t *Translator) HandleGesture(g Gesture) error {
	switch g {
	case GestureTouchDown, GestureMove:
		if !t.touched {
			if err := t.sink.ReportTouch(true); err != nil {
				return err
			}
			t.touched = true
		}
		pos, err := t.pos.ReadPosition()
		if err != nil {
			return err
		}
		if err := t.sink.ReportPosition(pos); err != nil {
			return err
		}
		return t.sink.Sync()
	case GestureTouchUp:
		if err := t.sink.ReportTouch(false); err != nil {
			return err
		}
		t.touched = false
		return t.sink.Sync()
	default:
		return nil
	}
}

// Reset clears the touch episode state without emitting events.
func (t *Translator) Reset() {
	t.touched = false
}
