package snapshot

// Merge combines two completed snapshots into a new one: flags are ORed,
// execution counts are summed, and a file present in only one input
// passes through unchanged. The operation is associative, which is what
// makes it safe to fold any number of parallel worker snapshots in any
// grouping.
//
// Merge is the only supported form of cross-session aggregation; inputs
// must come from stopped sessions.
func Merge(a, b *Snapshot) *Snapshot {
	out := &Snapshot{
		Version: Version,
		Files:   make(map[string]*FileCov, len(a.Files)+len(b.Files)),
	}

	for path, fc := range a.Files {
		out.Files[path] = cloneFile(fc)
	}
	for path, fc := range b.Files {
		existing, ok := out.Files[path]
		if !ok {
			out.Files[path] = cloneFile(fc)
			continue
		}
		mergeFile(existing, fc)
	}

	out.Recompute()
	return out
}

func mergeFile(dst, src *FileCov) {
	for n, lc := range src.Lines {
		cur := dst.Lines[n]
		cur.Executed = cur.Executed || lc.Executed
		cur.Covered = cur.Covered || lc.Covered
		cur.ExecutionCount += lc.ExecutionCount
		dst.Lines[n] = cur
	}
	for id, fn := range src.Functions {
		cur, ok := dst.Functions[id]
		if !ok {
			dst.Functions[id] = fn
			continue
		}
		cur.Executed = cur.Executed || fn.Executed
		cur.Covered = cur.Covered || fn.Covered
		cur.ExecutionCount += fn.ExecutionCount
		dst.Functions[id] = cur
	}
	for id, blk := range src.Blocks {
		cur, ok := dst.Blocks[id]
		if !ok {
			dst.Blocks[id] = blk
			continue
		}
		cur.Executed = cur.Executed || blk.Executed
		cur.Covered = cur.Covered || blk.Covered
		cur.ExecutionCount += blk.ExecutionCount
		dst.Blocks[id] = cur
	}
	for id, cond := range src.Conditions {
		cur, ok := dst.Conditions[id]
		if !ok {
			dst.Conditions[id] = cond
			continue
		}
		cur.TrueOutcomeExecuted = cur.TrueOutcomeExecuted || cond.TrueOutcomeExecuted
		cur.FalseOutcomeExecuted = cur.FalseOutcomeExecuted || cond.FalseOutcomeExecuted
		cur.ExecutionCount += cond.ExecutionCount
		dst.Conditions[id] = cur
	}
}

func cloneFile(fc *FileCov) *FileCov {
	out := &FileCov{
		Summary:    fc.Summary,
		Strategy:   fc.Strategy,
		Lines:      make(map[int]LineCov, len(fc.Lines)),
		Functions:  make(map[int]FuncCov, len(fc.Functions)),
		Blocks:     make(map[int]BlockCov, len(fc.Blocks)),
		Conditions: make(map[int]CondCov, len(fc.Conditions)),
	}
	for n, v := range fc.Lines {
		out.Lines[n] = v
	}
	for id, v := range fc.Functions {
		out.Functions[id] = v
	}
	for id, v := range fc.Blocks {
		out.Blocks[id] = v
	}
	for id, v := range fc.Conditions {
		out.Conditions[id] = v
	}
	return out
}
