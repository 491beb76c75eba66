package planner

import (
	"regexp/syntax"
)

// maxClassRangeLen bounds how wide a character class can be before we
// give up trying to enumerate it as a literal alternation and treat
// it as an unconstrained Break instead. A class like [0-9] (10 runes)
// is worth expanding into ("0" OR "1" OR ... OR "9"); [\x00-\xff] is
// not.
const maxClassRangeLen = 10

// step compiles one parsed regex AST node into a Fragment. It mirrors
// the shape of the original HIR walk: literals and small alternations
// become concrete text the index can prune on, everything whose
// matched text can't be pinned down (wildcards, repetition, wide
// classes) becomes a Break. Zero-width nodes (anchors, word
// boundaries, empty match) become an empty literal.
func step(re *syntax.Regexp) Fragment {
	switch re.Op {
	case syntax.OpLiteral:
		return NewLiteral(string(re.Rune))

	case syntax.OpConcat:
		acc := NewLiteral("")
		for _, sub := range re.Sub {
			acc = acc.And(step(sub))
		}
		return acc

	case syntax.OpAlternate:
		if len(re.Sub) == 0 {
			return NewBreak()
		}
		acc := step(re.Sub[0])
		for _, sub := range re.Sub[1:] {
			acc = acc.Or(step(sub))
		}
		return acc

	case syntax.OpCapture:
		if len(re.Sub) == 1 {
			return step(re.Sub[0])
		}
		return NewBreak()

	case syntax.OpCharClass:
		return stepCharClass(re)

	case syntax.OpEmptyMatch,
		syntax.OpBeginLine, syntax.OpEndLine,
		syntax.OpBeginText, syntax.OpEndText,
		syntax.OpWordBoundary, syntax.OpNoWordBoundary:
		// Zero-width: contributes no literal text but also excludes
		// nothing, so it's the identity element for And.
		return NewLiteral("")

	case syntax.OpStar, syntax.OpPlus, syntax.OpQuest, syntax.OpRepeat,
		syntax.OpAnyChar, syntax.OpAnyCharNotNL, syntax.OpNoMatch:
		return NewBreak()

	default:
		return NewBreak()
	}
}

// stepCharClass expands a narrow class ([abc], [0-9]) into an
// alternation of single-rune literals; a wide one ([\x00-\x{10ffff}])
// degrades to Break since enumerating it buys the index nothing.
func stepCharClass(re *syntax.Regexp) Fragment {
	total := 0
	for i := 0; i < len(re.Rune); i += 2 {
		lo, hi := re.Rune[i], re.Rune[i+1]
		total += int(hi-lo) + 1
		if total > maxClassRangeLen {
			return NewBreak()
		}
	}
	if total == 0 {
		return NewBreak()
	}
	var acc Fragment
	first := true
	for i := 0; i < len(re.Rune); i += 2 {
		lo, hi := re.Rune[i], re.Rune[i+1]
		for r := lo; r <= hi; r++ {
			lit := NewLiteral(string(r))
			if first {
				acc = lit
				first = false
			} else {
				acc = acc.Or(lit)
			}
		}
	}
	return acc
}

// Compile parses pattern and compiles it straight to a Fragment tree,
// without the subsequent optimization pass. Most callers want Plan
// instead.
func Compile(pattern string) (Fragment, error) {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return Fragment{}, err
	}
	return step(re), nil
}

// Plan compiles pattern and runs the optimizer to a fixed point (two
// passes, matching the original: a single pass can leave a
// newly-flattened Dense node un-inlined if the inlining opportunity
// only appears after flattening).
func Plan(pattern string) (Fragment, error) {
	frag, err := Compile(pattern)
	if err != nil {
		return Fragment{}, err
	}
	frag = Optimize(frag)
	frag = Optimize(frag)
	return frag, nil
}
