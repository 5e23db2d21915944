package kernel

// Itoa converts an integer to a string without using fmt.
// Debug paths run from interrupt context on TinyGo targets, where fmt is
// too heavy to pull in.
func Itoa(n int) string {
	return itoa(n)
}

// Utoa converts an unsigned integer to a string.
func Utoa(n uint32) string {
	return utoa(n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}

	negative := n < 0
	// Work in uint64 so the most negative int does not overflow.
	u := uint64(n)
	if negative {
		u = uint64(-(n + 1)) + 1
	}

	var buf [20]byte
	pos := len(buf)
	for u > 0 {
		pos--
		buf[pos] = byte('0' + u%10)
		u /= 10
	}

	if negative {
		return "-" + string(buf[pos:])
	}
	return string(buf[pos:])
}

func utoa(n uint32) string {
	return itoa(int(n))
}

// ValueString converts a constant value to its dictionary representation.
// Unknown types render as the empty string.
func ValueString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return itoa(val)
	case int32:
		return itoa(int(val))
	case int64:
		return itoa(int(val))
	case uint:
		return itoa(int(val))
	case uint32:
		return utoa(val)
	case uint64:
		return itoa(int(val))
	case bool:
		if val {
			return "1"
		}
		return "0"
	default:
		return ""
	}
}
