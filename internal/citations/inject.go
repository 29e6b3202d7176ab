package citations

import (
	"fmt"
	"sort"
	"strings"
)

// Span associates an end-of-span character offset in the generated answer
// with the references cited for that fragment.
type Span struct {
	End  int
	Refs []RetrievedReference
}

// InjectInline inserts [n] markers into the answer text at each span's end
// offset and returns the reconciled citation list for the whole response.
//
// Markers are applied back to front so earlier insertions never shift the
// offsets of insertions still pending. Multiple ids landing on the same
// offset are merged into one ascending group with no separator ("[1][3]").
// Offsets outside [0, len(answer)] are skipped. With no spans the answer is
// returned unchanged alongside an empty citation list.
func InjectInline(answer string, spans []Span) (string, []Citation) {
	if answer == "" || len(spans) == 0 {
		return answer, nil
	}

	var all []RetrievedReference
	for _, s := range spans {
		all = append(all, s.Refs...)
	}
	numbers, ordered := Reconcile(all)
	if len(numbers) == 0 {
		return answer, ordered
	}

	type insert struct {
		pos    int
		marker string
	}
	inserts := make([]insert, 0, len(spans))
	merged := make(map[int][]int) // offset -> ids

	for _, s := range spans {
		for _, r := range s.Refs {
			n, ok := numbers[r.Key()]
			if !ok {
				continue
			}
			if !containsInt(merged[s.End], n) {
				merged[s.End] = append(merged[s.End], n)
			}
		}
	}

	for pos, ids := range merged {
		sort.Ints(ids)
		var b strings.Builder
		for _, n := range ids {
			fmt.Fprintf(&b, "[%d]", n)
		}
		inserts = append(inserts, insert{pos: pos, marker: b.String()})
	}

	if len(inserts) == 0 {
		return answer, ordered
	}

	// Descending offset order keeps pending offsets valid.
	sort.Slice(inserts, func(i, j int) bool { return inserts[i].pos > inserts[j].pos })

	out := answer
	for _, ins := range inserts {
		if ins.pos < 0 || ins.pos > len(out) {
			continue
		}
		out = out[:ins.pos] + ins.marker + out[ins.pos:]
	}

	return out, ordered
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
