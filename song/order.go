package song

// PatternIndex refers to Song.Patterns, or is one of the order sentinels.
type PatternIndex = uint16

const (
	OrderSkip PatternIndex = 0xFFFE // "+++" slot, skipped by playback
	OrderStop PatternIndex = 0xFFFF // "---" slot, ends the song

	MaxOrders = 4096
)

// Order is the sequence of patterns that defines playback order.
type Order []PatternIndex

// At returns the entry at i, or OrderStop if i is out of range.
func (o Order) At(i int) PatternIndex {
	if i < 0 || i >= len(o) {
		return OrderStop
	}
	return o[i]
}

// ReadOrderFromArray translates a format's native order list. Entries equal to stopIndex
// become OrderStop and entries equal to ignoreIndex become OrderSkip; pass -1 for a sentinel
// the format does not have. The result is truncated to MaxOrders entries.
func ReadOrderFromArray[T ~uint8 | ~uint16](src []T, stopIndex, ignoreIndex int) Order {
	n := min(len(src), MaxOrders)
	o := make(Order, n)
	for i, v := range src[:n] {
		switch int(v) {
		case stopIndex:
			o[i] = OrderStop
		case ignoreIndex:
			o[i] = OrderSkip
		default:
			o[i] = PatternIndex(v)
		}
	}
	return o
}

// Length returns the number of entries before the first OrderStop.
func (o Order) Length() int {
	for i, v := range o {
		if v == OrderStop {
			return i
		}
	}
	return len(o)
}

// TrimStops removes trailing OrderStop entries.
func (o Order) TrimStops() Order {
	n := len(o)
	for n > 0 && o[n-1] == OrderStop {
		n--
	}
	return o[:n]
}

// MaxPattern returns the highest pattern index referenced before the first stop, or -1.
func (o Order) MaxPattern() int {
	highest := -1
	for _, v := range o[:o.Length()] {
		if v != OrderSkip && int(v) > highest {
			highest = int(v)
		}
	}
	return highest
}
