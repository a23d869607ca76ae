package merge

import "sort"

// linkRecord is where a link sits in one version of a list. Absent links all
// compare equal regardless of position.
type linkRecord struct {
	present bool
	pos     int
}

func indexLinks(links []string) map[string]linkRecord {
	idx := make(map[string]linkRecord, len(links))
	for i, l := range links {
		if _, dup := idx[l]; !dup {
			idx[l] = linkRecord{present: true, pos: i}
		}
	}
	return idx
}

// MergeLinks merges ordered link lists. Every link ever seen gets its
// (present, position) record merged with MergeResult; survivors are sorted by
// merged position, ties kept in first-seen order (original, then each
// modification in turn).
func MergeLinks(original []string, modifications [][]string) ([]string, error) {
	origIdx := indexLinks(original)
	modIdx := make([]map[string]linkRecord, len(modifications))
	for k, m := range modifications {
		modIdx[k] = indexLinks(m)
	}

	var union []string
	seen := make(map[string]bool)
	for _, list := range append([][]string{original}, modifications...) {
		for _, l := range list {
			if !seen[l] {
				seen[l] = true
				union = append(union, l)
			}
		}
	}

	type survivor struct {
		link string
		pos  int
	}
	var out []survivor
	records := make([]linkRecord, len(modifications))
	for _, l := range union {
		for k, idx := range modIdx {
			records[k] = idx[l]
		}
		rec, err := MergeResult(origIdx[l], records)
		if err != nil {
			return nil, conflictOn("link "+l, err)
		}
		if rec.present {
			out = append(out, survivor{link: l, pos: rec.pos})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].pos < out[j].pos })
	merged := make([]string, len(out))
	for i, s := range out {
		merged[i] = s.link
	}
	return merged, nil
}
