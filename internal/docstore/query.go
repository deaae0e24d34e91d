package docstore

import (
	"encoding/json"
	"sort"

	ierr "github.com/condobill/condobill/internal/errors"
)

// EvaluateQuery applies filters, ordering and limit to a collection's
// entries. Implementations that cannot push predicates down share this
// evaluator so both backends agree on semantics.
func EvaluateQuery(entries []Entry, q Query) ([]Entry, error) {
	matched := make([]Entry, 0, len(entries))
	docs := make(map[string]map[string]any, len(entries))

	for _, e := range entries {
		var doc map[string]any
		if err := json.Unmarshal(e.Data, &doc); err != nil {
			return nil, ierr.WithError(err).Mark(ierr.ErrPermanent)
		}
		ok := true
		for _, f := range q.Filters {
			if !matches(doc[f.Field], f) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, e)
			docs[e.Path] = doc
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			less := compare(docs[matched[i].Path][q.OrderBy], docs[matched[j].Path][q.OrderBy]) < 0
			if q.Descending {
				return !less
			}
			return less
		})
	} else {
		sort.SliceStable(matched, func(i, j int) bool {
			if q.Descending {
				return matched[i].Path > matched[j].Path
			}
			return matched[i].Path < matched[j].Path
		})
	}

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func matches(value any, f Filter) bool {
	c := compare(value, f.Value)
	switch f.Op {
	case OpEqual:
		return c == 0
	case OpLess:
		return c < 0
	case OpLessOrEqual:
		return c <= 0
	case OpGreater:
		return c > 0
	case OpGreaterEqual:
		return c >= 0
	default:
		return false
	}
}

// compare handles the two value families that occur in stored documents:
// JSON numbers and strings. Mismatched kinds order numbers first.
func compare(a, b any) int {
	an, aIsNum := toFloat(a)
	bn, bIsNum := toFloat(b)
	if aIsNum && bIsNum {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}
	if aIsNum != bIsNum {
		if aIsNum {
			return -1
		}
		return 1
	}

	as, _ := a.(string)
	bs, _ := b.(string)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
