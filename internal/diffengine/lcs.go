package diffengine

// editScript aligns two token sequences into a minimum-edit script of
// equal/insert/delete runs. Common leading and trailing material is matched
// first; the middle is aligned in linear space, with deterministic choices
// throughout so the script is stable across calls.
func editScript(a, b []string) []Op {
	// Common prefix.
	p := 0
	for p < len(a) && p < len(b) && a[p] == b[p] {
		p++
	}
	// Common suffix of what remains.
	s := 0
	for s < len(a)-p && s < len(b)-p && a[len(a)-1-s] == b[len(b)-1-s] {
		s++
	}

	var ops []Op
	if p > 0 {
		ops = append(ops, Op{Kind: OpEqual, Tokens: a[:p:p]})
	}
	ops = append(ops, lcsOps(a[p:len(a)-s], b[p:len(b)-s])...)
	if s > 0 {
		ops = append(ops, Op{Kind: OpEqual, Tokens: a[len(a)-s:]})
	}
	return coalesce(ops)
}

// lcsOps aligns the trimmed middle. Real 10-K sections run to tens of
// thousands of tokens per side, so a full LCS table is out of the question;
// Hirschberg's divide and conquer keeps memory linear in the shorter side:
// two rolling-row passes find where an optimal path crosses the midline of
// a, then each half recurses.
func lcsOps(a, b []string) []Op {
	return hirschberg(nil, a, b)
}

func hirschberg(ops []Op, a, b []string) []Op {
	switch {
	case len(a) == 0 && len(b) == 0:
		return ops
	case len(a) == 0:
		for _, tok := range b {
			ops = appendRun(ops, OpInsert, tok)
		}
		return ops
	case len(b) == 0:
		for _, tok := range a {
			ops = appendRun(ops, OpDelete, tok)
		}
		return ops
	case len(a) == 1:
		return alignSingleA(ops, a[0], b)
	case len(b) == 1:
		return alignSingleB(ops, a, b[0])
	}

	mid := len(a) / 2
	front := lcsRow(a[:mid], b)
	back := lcsRowRev(a[mid:], b)

	// Earliest split that lies on an optimal path. The strict > keeps the
	// smallest j on ties, which puts deletions ahead of insertions wherever
	// both orders are minimal.
	split, best := 0, -1
	for j := 0; j <= len(b); j++ {
		if v := front[j] + back[len(b)-j]; v > best {
			best, split = v, j
		}
	}

	ops = hirschberg(ops, a[:mid], b[:split])
	return hirschberg(ops, a[mid:], b[split:])
}

// alignSingleA matches one remaining a token against b: tokens before its
// first occurrence become insertions, and an absent token is a deletion
// followed by the whole of b.
func alignSingleA(ops []Op, x string, b []string) []Op {
	for j, tok := range b {
		if tok != x {
			continue
		}
		for _, ins := range b[:j] {
			ops = appendRun(ops, OpInsert, ins)
		}
		ops = appendRun(ops, OpEqual, x)
		for _, ins := range b[j+1:] {
			ops = appendRun(ops, OpInsert, ins)
		}
		return ops
	}
	ops = appendRun(ops, OpDelete, x)
	for _, ins := range b {
		ops = appendRun(ops, OpInsert, ins)
	}
	return ops
}

// alignSingleB is the mirror case: deletions up to the first occurrence of
// the single b token in a, deletions after it, or all deletions plus one
// insertion when it never occurs.
func alignSingleB(ops []Op, a []string, y string) []Op {
	for i, tok := range a {
		if tok != y {
			continue
		}
		for _, del := range a[:i] {
			ops = appendRun(ops, OpDelete, del)
		}
		ops = appendRun(ops, OpEqual, y)
		for _, del := range a[i+1:] {
			ops = appendRun(ops, OpDelete, del)
		}
		return ops
	}
	for _, del := range a {
		ops = appendRun(ops, OpDelete, del)
	}
	return appendRun(ops, OpInsert, y)
}

// lcsRow computes the final row of the prefix LCS table with two rolling
// rows: row[j] is the LCS length of a and b[:j].
func lcsRow(a, b []string) []int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := range a {
		cur[0] = 0
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev
}

// lcsRowRev is lcsRow over reversed inputs: row[j] is the LCS length of a
// and the last j tokens of b.
func lcsRowRev(a, b []string) []int {
	n, m := len(a), len(b)
	prev := make([]int, m+1)
	cur := make([]int, m+1)
	for i := n - 1; i >= 0; i-- {
		cur[0] = 0
		for j := 1; j <= m; j++ {
			switch {
			case a[i] == b[m-j]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev
}

// appendRun extends the last op when the kind matches, otherwise starts a
// new run.
func appendRun(ops []Op, kind OpKind, token string) []Op {
	if n := len(ops); n > 0 && ops[n-1].Kind == kind {
		ops[n-1].Tokens = append(ops[n-1].Tokens, token)
		return ops
	}
	return append(ops, Op{Kind: kind, Tokens: []string{token}})
}

// coalesce merges adjacent ops of the same kind left over from joining the
// prefix, middle, and suffix segments.
func coalesce(ops []Op) []Op {
	var out []Op
	for _, op := range ops {
		if len(op.Tokens) == 0 {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Kind == op.Kind {
			out[n-1].Tokens = append(out[n-1].Tokens, op.Tokens...)
			continue
		}
		out = append(out, op)
	}
	return out
}
