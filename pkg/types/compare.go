package types

import (
	"bytes"
	"cmp"
)

// Compare defines the total order used for sorting values. Null sorts
// before everything else. Values of the same kind compare natively;
// dates and datetimes compare as their ISO-8601 strings. Integers and
// floats compare numerically with each other. Any other mix falls back
// to comparing DebugString renderings so the order stays total.
func Compare(a, b Value) int {
	switch {
	case a.IsNull() && b.IsNull():
		return 0
	case a.IsNull():
		return -1
	case b.IsNull():
		return 1
	}

	if a.kind == b.kind {
		switch a.kind {
		case KindInteger:
			return cmp.Compare(a.i, b.i)
		case KindFloat:
			return cmp.Compare(a.f, b.f)
		case KindBoolean:
			return compareBool(a.b, b.b)
		case KindBinary:
			return bytes.Compare(a.bin, b.bin)
		default:
			return cmp.Compare(a.s, b.s)
		}
	}

	if fa, ok := a.AsFloat(); ok {
		if fb, ok := b.AsFloat(); ok {
			return cmp.Compare(fa, fb)
		}
	}

	return cmp.Compare(a.DebugString(), b.DebugString())
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}
