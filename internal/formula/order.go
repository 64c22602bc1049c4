package formula

// Definition is a calculation field as seen by the evaluator.
type Definition struct {
	FieldID string
	Formula string
}

// Failure records a calculation field whose formula produced no number.
type Failure struct {
	FieldID string
	Err     error
}

// Result summarises one recalculation pass.
type Result struct {
	Updated  []string
	Failures []Failure
	// Cyclic lists calculation fields that reference each other in a cycle.
	// They are still evaluated once, in declaration order, and may lag one
	// recalculation behind.
	Cyclic []string
}

// Order sorts definitions so every calculation field comes after the
// calculation fields it references. Ties keep declaration order. Fields
// caught in a reference cycle are returned separately, in declaration order.
func Order(defs []Definition) (ordered []Definition, cyclic []Definition) {
	index := make(map[string]int, len(defs))
	for i, d := range defs {
		index[d.FieldID] = i
	}

	indegree := make([]int, len(defs))
	dependents := make([][]int, len(defs))
	for i, d := range defs {
		for _, ref := range References(d.Formula) {
			j, ok := index[ref]
			if !ok {
				continue
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	done := make([]bool, len(defs))
	for {
		next := -1
		for i := range defs {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			break
		}
		done[next] = true
		ordered = append(ordered, defs[next])
		for _, dep := range dependents[next] {
			indegree[dep]--
		}
	}

	for i, d := range defs {
		if !done[i] {
			cyclic = append(cyclic, d)
		}
	}
	return ordered, cyclic
}

// Recalculate evaluates every definition against values in dependency order
// and writes results back into values as float64. A failing formula leaves
// the field's previous value untouched and is reported in the result.
func Recalculate(defs []Definition, values map[string]any) Result {
	ordered, cyclic := Order(defs)

	var res Result
	for _, d := range cyclic {
		res.Cyclic = append(res.Cyclic, d.FieldID)
	}

	for _, d := range append(ordered, cyclic...) {
		v, err := Evaluate(d.Formula, values)
		if err != nil {
			res.Failures = append(res.Failures, Failure{FieldID: d.FieldID, Err: err})
			continue
		}
		values[d.FieldID] = v.InexactFloat64()
		res.Updated = append(res.Updated, d.FieldID)
	}
	return res
}
