package pairing

// Dialect distinguishes the two compatible peripheral behaviors
// observed after ALIVE_CHECK; the engine tries dialect A first and
// falls through to B when the inter-state wait elapses in
// LEARNING_MODE without a peripheral challenge.
type Dialect int

const (
	DialectUndetermined Dialect = iota
	DialectA
	DialectB
)

func (d Dialect) String() string {
	switch d {
	case DialectA:
		return "A"
	case DialectB:
		return "B"
	default:
		return "undetermined"
	}
}
