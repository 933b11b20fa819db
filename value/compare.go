package value

import "strings"

// Compare orders two values by the total order
// null < false < true < number < text < sequence < mapping.
//
// Sequences compare element-wise, then by length. Mappings compare their
// entries pairwise in ascending key order (key first, then value), then by
// size. The result is -1, 0 or +1.
func Compare(a, b Value) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindNull:
		return 0
	case KindBool:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		}
		return 1
	case KindNumber:
		switch {
		case a.n < b.n:
			return -1
		case a.n > b.n:
			return 1
		}
		return 0
	case KindText:
		return strings.Compare(a.s, b.s)
	case KindSequence:
		for i := 0; i < len(a.seq) && i < len(b.seq); i++ {
			if c := Compare(a.seq[i], b.seq[i]); c != 0 {
				return c
			}
		}
		return compareLen(len(a.seq), len(b.seq))
	case KindMapping:
		ak, bk := a.Keys(), b.Keys()
		for i := 0; i < len(ak) && i < len(bk); i++ {
			if c := strings.Compare(ak[i], bk[i]); c != 0 {
				return c
			}
			if c := Compare(a.m[ak[i]], b.m[bk[i]]); c != 0 {
				return c
			}
		}
		return compareLen(len(ak), len(bk))
	}
	return 0
}

// Equal reports whether a and b are structurally identical.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

func compareLen(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
