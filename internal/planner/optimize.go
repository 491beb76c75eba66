package planner

// Optimize rewrites a compiled Fragment tree into an equivalent but
// flatter and more index-friendly shape: same-operator nesting is
// spliced into its parent, and AND is distributed over any OR child
// so that the final tree's outermost structure is an OR of ANDs
// wherever possible — the shape a trigram index can evaluate as a
// union of intersection queries.
func Optimize(f Fragment) Fragment {
	switch f.Kind {
	case KindLiteral, KindBreak:
		return f
	case KindDense:
		children := make([]Fragment, len(f.Children))
		for i, c := range f.Children {
			children[i] = Optimize(c)
		}
		switch f.Op {
		case And:
			return inline(flattenAnd(NewDense(And, children)))
		case Or:
			return flattenOr(NewDense(Or, children))
		}
	}
	return f
}

// flattenAnd splices any immediate Dense(And, ...) child into the
// parent's child list, exploiting associativity of AND.
func flattenAnd(f Fragment) Fragment {
	if f.Kind != KindDense || f.Op != And {
		return f
	}
	var out []Fragment
	for _, c := range f.Children {
		if c.Kind == KindDense && c.Op == And {
			out = append(out, c.Children...)
		} else {
			out = append(out, c)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return NewDense(And, out)
}

// flattenOr is flattenAnd's OR counterpart.
func flattenOr(f Fragment) Fragment {
	if f.Kind != KindDense || f.Op != Or {
		return f
	}
	var out []Fragment
	for _, c := range f.Children {
		if c.Kind == KindDense && c.Op == Or {
			out = append(out, c.Children...)
		} else {
			out = append(out, c)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return NewDense(Or, out)
}

// inline distributes AND over any OR-shaped operand it meets,
// left-to-right, using a running accumulator: And(Or(a,b), X)
// becomes Or(And(a,X), And(b,X)). Without this, a pattern like
// "x(foo|bar)y" would stay a single AND node whose middle child is an
// opaque OR, which a trigram planner can't turn into an efficient
// union-of-intersections query.
func inline(f Fragment) Fragment {
	if f.Kind != KindDense || f.Op != And {
		return f
	}
	if len(f.Children) == 0 {
		return f
	}
	acc := f.Children[0]
	for _, next := range f.Children[1:] {
		acc = distributeAnd(acc, next)
	}
	return acc
}

// distributeAnd computes lhs AND rhs, distributing across either side
// if it is an OR-shaped Dense node.
func distributeAnd(lhs, rhs Fragment) Fragment {
	lhsIsOr := lhs.Kind == KindDense && lhs.Op == Or
	rhsIsOr := rhs.Kind == KindDense && rhs.Op == Or

	switch {
	case lhsIsOr && rhsIsOr:
		var branches []Fragment
		for _, l := range lhs.Children {
			for _, r := range rhs.Children {
				branches = append(branches, distributeAnd(l, r))
			}
		}
		return flattenOr(NewDense(Or, branches))
	case lhsIsOr:
		branches := make([]Fragment, len(lhs.Children))
		for i, l := range lhs.Children {
			branches[i] = l.And(rhs)
		}
		return flattenOr(NewDense(Or, branches))
	case rhsIsOr:
		branches := make([]Fragment, len(rhs.Children))
		for i, r := range rhs.Children {
			branches[i] = lhs.And(r)
		}
		return flattenOr(NewDense(Or, branches))
	default:
		return lhs.And(rhs)
	}
}
