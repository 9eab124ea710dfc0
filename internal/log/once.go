package log

// Once suppresses repeated log lines for a sustained condition.
// A key fires once, then stays quiet until Reset re-arms it.
// Not safe for concurrent use; it lives on the single frame path.
type Once struct {
	fired map[string]bool
}

// NewOnce creates an empty limiter.
func NewOnce() *Once {
	return &Once{fired: make(map[string]bool)}
}

// Do runs fn if key has not fired since the last Reset.
// Returns true when fn ran.
func (o *Once) Do(key string, fn func()) bool {
	if o.fired[key] {
		return false
	}
	o.fired[key] = true
	fn()
	return true
}

// Reset re-arms key so the next Do logs again.
func (o *Once) Reset(key string) {
	delete(o.fired, key)
}

// Fired reports whether key is currently suppressed.
func (o *Once) Fired(key string) bool {
	return o.fired[key]
}
