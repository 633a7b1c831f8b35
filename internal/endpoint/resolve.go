// Package endpoint decides which physical end of each cable takes part in a
// two-cable join when the caller supplies no polarity.
package endpoint

import (
	"github.com/mesh-intelligence/fiberplant/internal/model"
	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

// Rule identifies the coincidence that decided a resolution.
type Rule int

const (
	// Unresolved means no endpoints coincide; the default orientation
	// (A at From, B at To) was kept as a guess.
	Unresolved Rule = iota
	// ToFrom means A.To coincides with B.From.
	ToFrom
	// FromFrom means both From ends coincide.
	FromFrom
	// ToTo means both To ends coincide.
	ToTo
)

func (r Rule) String() string {
	switch r {
	case ToFrom:
		return "to_from"
	case FromFrom:
		return "from_from"
	case ToTo:
		return "to_to"
	default:
		return "unresolved"
	}
}

// Resolution is the chosen pair of joining ends.
type Resolution struct {
	Ends model.PairedJoinEnds
	Rule Rule
}

// Resolved reports whether a geometric coincidence decided the ends.
func (r Resolution) Resolved() bool {
	return r.Rule != Unresolved
}

// Resolve picks the joining end of a and b. The checks run in a fixed order
// and the first coincidence wins; on ambiguous geometry the order decides.
// Points compare by exact equality. A cable without a shape never
// coincides with anything.
func Resolve(a, b *model.Cable) Resolution {
	res := Resolution{
		Ends: model.PairedJoinEnds{
			A: model.JoinEnd{Cable: a, End: model.EndFrom},
			B: model.JoinEnd{Cable: b, End: model.EndTo},
		},
		Rule: Unresolved,
	}

	aFrom, aTo, aok := ends(a)
	bFrom, bTo, bok := ends(b)
	if !aok || !bok {
		return res
	}

	switch {
	case aTo == bFrom:
		res.Ends.A.End, res.Ends.B.End = model.EndTo, model.EndFrom
		res.Rule = ToFrom
	case aFrom == bFrom:
		res.Ends.B.End = model.EndFrom
		res.Rule = FromFrom
	case aTo == bTo:
		res.Ends.A.End = model.EndTo
		res.Rule = ToTo
	}
	return res
}

func ends(c *model.Cable) (from, to types.Point, ok bool) {
	if c == nil {
		return from, to, false
	}
	if from, ok = c.From(); !ok {
		return from, to, false
	}
	to, ok = c.To()
	return from, to, ok
}
