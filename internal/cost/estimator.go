package cost

import (
	"sort"
	"strings"
)

// resourceMarker opens every resource block in the generated text.
const resourceMarker = `resource "`

// Estimator prices artifact text against a rate table. It holds no mutable
// state and is safe for concurrent use.
type Estimator struct {
	// ordered is the rate table in match precedence: longest marker first,
	// table order among equal lengths.
	ordered []Rate
	// first indexes ordered by a marker's first byte.
	first map[byte][]int
}

// New builds an Estimator over rates. A nil or empty table falls back to
// DefaultRates.
func New(rates []Rate) (*Estimator, error) {
	if len(rates) == 0 {
		rates = DefaultRates()
	}
	if err := ValidateRates(rates); err != nil {
		return nil, err
	}

	ordered := make([]Rate, len(rates))
	copy(ordered, rates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].Marker) > len(ordered[j].Marker)
	})

	first := make(map[byte][]int)
	for i, r := range ordered {
		first[r.Marker[0]] = append(first[r.Marker[0]], i)
	}
	return &Estimator{ordered: ordered, first: first}, nil
}

// Default returns an Estimator over DefaultRates.
func Default() *Estimator {
	e, err := New(nil)
	if err != nil {
		panic("cost: default rate table invalid: " + err.Error())
	}
	return e
}

// Estimate returns the estimated monthly cost of text.
func (e *Estimator) Estimate(text string) USD {
	var total USD
	e.scan(text, func(idx int) {
		total += e.ordered[idx].Unit
	})
	return total
}

// Line is one row of a cost breakdown.
type Line struct {
	Marker   string `json:"marker"`
	Count    int    `json:"count"`
	Unit     USD    `json:"unit"`
	Subtotal USD    `json:"subtotal"`
}

// Breakdown returns per-marker counts for every marker that matched, in
// rate precedence order. The subtotals sum to Estimate(text).
func (e *Estimator) Breakdown(text string) []Line {
	counts := make([]int, len(e.ordered))
	e.scan(text, func(idx int) {
		counts[idx]++
	})

	var lines []Line
	for i, n := range counts {
		if n == 0 {
			continue
		}
		r := e.ordered[i]
		lines = append(lines, Line{
			Marker:   r.Marker,
			Count:    n,
			Unit:     r.Unit,
			Subtotal: r.Unit * USD(n),
		})
	}
	return lines
}

// scan walks text once and reports the precedence index of every marker
// match. A match consumes its span.
func (e *Estimator) scan(text string, hit func(idx int)) {
	for i := 0; i < len(text); {
		matched := false
		for _, idx := range e.first[text[i]] {
			m := e.ordered[idx].Marker
			if strings.HasPrefix(text[i:], m) {
				hit(idx)
				i += len(m)
				matched = true
				break
			}
		}
		if !matched {
			i++
		}
	}
}

// CountResources returns the number of resource blocks in text.
func CountResources(text string) int {
	return strings.Count(text, resourceMarker)
}
