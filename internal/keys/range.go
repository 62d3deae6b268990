package keys

import "time"

// Op is a sort key comparison.
type Op int

const (
	OpAll Op = iota
	OpEqual
	OpBeginsWith
	OpBetween
	OpGreaterOrEqual
	OpLessOrEqual
)

// Range restricts a query to part of a partition's sort keys. The zero Range
// matches the whole partition.
type Range struct {
	Op Op
	Lo string
	Hi string
}

// All matches every sort key in the partition.
func All() Range { return Range{} }

// BeginsWith matches sort keys with the given prefix.
func BeginsWith(prefix string) Range { return Range{Op: OpBeginsWith, Lo: prefix} }

// Between matches sort keys in [lo, hi], inclusive on both ends.
func Between(lo, hi string) Range { return Range{Op: OpBetween, Lo: lo, Hi: hi} }

// Since matches sort keys greater than or equal to lo.
func Since(lo string) Range { return Range{Op: OpGreaterOrEqual, Lo: lo} }

// Until matches sort keys less than or equal to hi.
func Until(hi string) Range { return Range{Op: OpLessOrEqual, Hi: hi} }

// Match reports whether sk satisfies the range using byte-wise ordering, which
// is what DynamoDB applies to string sort keys.
func (r Range) Match(sk string) bool {
	switch r.Op {
	case OpEqual:
		return sk == r.Lo
	case OpBeginsWith:
		return len(sk) >= len(r.Lo) && sk[:len(r.Lo)] == r.Lo
	case OpBetween:
		return sk >= r.Lo && sk <= r.Hi
	case OpGreaterOrEqual:
		return sk >= r.Lo
	case OpLessOrEqual:
		return sk <= r.Hi
	default:
		return true
	}
}

// Dated restricts a date-prefixed index (GSI2, GSI3, GSI4) to rows whose date
// falls within [from, to]. A zero bound is open.
func Dated(from, to time.Time) Range {
	// '$' sorts directly after the '#' separator, so every key starting with
	// the upper stamp is included.
	switch {
	case from.IsZero() && to.IsZero():
		return All()
	case from.IsZero():
		return Until(Stamp(to) + "$")
	case to.IsZero():
		return Since(Stamp(from))
	default:
		return Between(Stamp(from), Stamp(to)+"$")
	}
}
