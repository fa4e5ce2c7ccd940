package ratel

// Prefix is the first byte of every key, naming the kind of record.
type Prefix byte

const (
	// Schema holds the database schema version.
	Schema Prefix = iota
	// Payload records are keyed by prefix and URL, the value being an 8 byte
	// big endian unix nanosecond stored-at time followed by the payload.
	Payload
)

// B returns the prefix byte.
func (p Prefix) B() byte { return byte(p) }

// Key builds a key of this prefix.
func (p Prefix) Key(s st) (k by) {
	k = make(by, 0, 1+len(s))
	k = append(k, p.B())
	return append(k, s...)
}
