// Package slidebar implements the control logic of the touch slidebar found
// on some Lenovo IdeaPad laptops: scancode classification, gesture
// translation and the LED mode byte format.
package slidebar

// Gesture is a classified slidebar action. It is produced by the Classifier
// and consumed by the Translator within a single classification step.
type Gesture uint8

const (
	GestureNone Gesture = iota
	GestureTouchDown
	GestureMove
	GestureTouchUp
)

func (g Gesture) String() string {
	switch g {
	case GestureTouchDown:
		return "touch-down"
	case GestureMove:
		return "move"
	case GestureTouchUp:
		return "touch-up"
	default:
		return "none"
	}
}
