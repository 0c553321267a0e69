package slidebar

// The slidebar shares the keyboard controller and reuses scancode space for a
// proprietary two-byte sequence: 0xE0 0x3B while a finger moves on the bar,
// 0xE0 0xBB when it is lifted. 0xE0 is also the regular extended-key prefix,
// so only the two follow-up bytes are private to the slidebar and may be
// withheld from the keyboard pipeline.
const (
	extendedPrefix = 0xe0
	moveCode       = 0x3b
	releaseCode    = 0xbb
)

// Result is the outcome of classifying one byte. Suppress reports whether the
// byte is slidebar-private and must not reach the normal keyboard pipeline.
type Result struct {
	Gesture  Gesture
	Suppress bool
}

// Classifier is a finite-state machine over the raw keyboard byte stream.
// It observes every byte and recognizes the slidebar sequences without
// disturbing ordinary key traffic.
//
// A Classifier is not safe for concurrent use. The byte delivery mechanism
// serializes calls per device, and Feed must be called with bytes in arrival
// order.
type Classifier struct {
	extended bool
	touched  bool
}

// Feed classifies a single byte and advances the state machine.
func (c *Classifier) Feed(b byte) Result {
	switch {
	case b == extendedPrefix:
		c.extended = true
		return Result{}
	case c.extended && b == moveCode:
		c.extended = false
		if !c.touched {
			c.touched = true
			return Result{Gesture: GestureTouchDown, Suppress: true}
		}
		return Result{Gesture: GestureMove, Suppress: true}
	case c.extended && b == releaseCode:
		c.extended = false
		c.touched = false
		return Result{Gesture: GestureTouchUp, Suppress: true}
	default:
		// An unrelated extended key. Forget the prefix so it cannot leak
		// into the classification of a later sequence.
		c.extended = false
		return Result{}
	}
}

// Touched reports whether the classifier currently considers the bar touched.
func (c *Classifier) Touched() bool {
	return c.touched
}

// Reset returns the classifier to its initial untouched state.
func (c *Classifier) Reset() {
	c.extended = false
	c.touched = false
}
