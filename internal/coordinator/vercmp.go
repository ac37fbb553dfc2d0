package coordinator

import "strings"

// Compare orders two pacman-style version strings ("[epoch:]version[-rel]"),
// returning -1, 0, or 1, per the well-known pacman/rpm vercmp algorithm
// (spec 4.F "Auto-resolution strategies": "lexicographic version-compare
// is acceptable... implementations may use semver-aware compare"; this is
// the semver-aware option). No pack example ships a licensed vercmp port
// (see DESIGN.md), so this is a from-scratch implementation of the public
// algorithm rather than an unverified third-party dependency.
func Compare(a, b string) int {
	if a == b {
		return 0
	}
	epochA, restA := splitEpoch(a)
	epochB, restB := splitEpoch(b)
	if epochA != epochB {
		if epochA > epochB {
			return 1
		}
		return -1
	}
	return rpmvercmp(restA, restB)
}

// splitEpoch extracts a leading "N:" epoch prefix, defaulting to 0.
func splitEpoch(v string) (int, string) {
	idx := strings.IndexByte(v, ':')
	if idx < 0 {
		return 0, v
	}
	epoch := 0
	for _, c := range v[:idx] {
		if c < '0' || c > '9' {
			return 0, v
		}
		epoch = epoch*10 + int(c-'0')
	}
	return epoch, v[idx+1:]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isAlnum(c byte) bool { return isDigit(c) || isAlpha(c) }

// rpmvercmp compares two version strings segment by segment, alternating
// between runs of digits (compared numerically) and runs of letters
// (compared lexically), treating every other byte as a separator.
func rpmvercmp(a, b string) int {
	if a == b {
		return 0
	}
	ia, ib := 0, 0
	for ia < len(a) && ib < len(b) {
		for ia < len(a) && !isAlnum(a[ia]) {
			ia++
		}
		for ib < len(b) && !isAlnum(b[ib]) {
			ib++
		}
		if ia >= len(a) || ib >= len(b) {
			break
		}

		startA, startB := ia, ib
		numeric := isDigit(a[ia])
		if numeric {
			for ia < len(a) && isDigit(a[ia]) {
				ia++
			}
			for ib < len(b) && isDigit(b[ib]) {
				ib++
			}
		} else {
			for ia < len(a) && isAlpha(a[ia]) {
				ia++
			}
			for ib < len(b) && isAlpha(b[ib]) {
				ib++
			}
		}

		segA := a[startA:ia]
		segB := b[startB:ib]

		if segB == "" {
			if numeric {
				return 1
			}
			return -1
		}
		if segA == "" {
			if numeric {
				return -1
			}
			return 1
		}

		if numeric {
			segA = strings.TrimLeft(segA, "0")
			segB = strings.TrimLeft(segB, "0")
			if len(segA) != len(segB) {
				if len(segA) > len(segB) {
					return 1
				}
				return -1
			}
		}
		if segA != segB {
			if segA > segB {
				return 1
			}
			return -1
		}
	}

	switch {
	case ia >= len(a) && ib >= len(b):
		return 0
	case ia >= len(a):
		return -1
	default:
		return 1
	}
}
