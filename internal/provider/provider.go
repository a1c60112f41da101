// Package provider derives stable provider keys from normalized provider
// names and externally supplied provider ids.
package provider

import (
	"fmt"
	"sort"
	"strings"
)

var stopwords = map[string]bool{
	"the": true, "of": true, "and": true, "at": true, "for": true,
}

// Tokens returns the sorted, de-duplicated token set of a normalized name.
func Tokens(name string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range strings.Fields(name) {
		if stopwords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// Jaccard returns |a∩b| / |a∪b| for two sorted token sets.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			inter++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

type class struct {
	key    string
	ids    []string
	tokens [][]string
}

func (c *class) similarity(tokens []string) float64 {
	best := 0.0
	for _, t := range c.tokens {
		if s := Jaccard(t, tokens); s > best {
			best = s
		}
	}
	return best
}

func (c *class) addTokens(tokens []string) {
	if len(tokens) == 0 {
		return
	}
	for _, t := range c.tokens {
		if Jaccard(t, tokens) == 1 {
			return
		}
	}
	c.tokens = append(c.tokens, tokens)
}

// Resolver groups provider names into similarity classes. A supplied
// provider id always wins over name similarity. Resolution depends on the
// order names are offered, so callers must offer them in ingestion order.
// A Resolver is not safe for concurrent use.
type Resolver struct {
	threshold float64
	classes   []*class
	byID      map[string]*class
	keys      map[string]bool
}

// NewResolver creates a resolver that merges names whose token Jaccard
// similarity is at least threshold.
func NewResolver(threshold float64) *Resolver {
	return &Resolver{
		threshold: threshold,
		byID:      make(map[string]*class),
		keys:      make(map[string]bool),
	}
}

// Key returns the provider key for a normalized name and optional id.
func (r *Resolver) Key(name, id string) string {
	tokens := Tokens(name)

	if id != "" {
		if c, ok := r.byID[id]; ok {
			c.addTokens(tokens)
			return c.key
		}
		// An unclaimed name class adopts the id.
		if c := r.mostSimilar(tokens, true); c != nil {
			c.ids = append(c.ids, id)
			c.addTokens(tokens)
			r.byID[id] = c
			return c.key
		}
		c := r.newClass("id:"+id, tokens)
		c.ids = append(c.ids, id)
		r.byID[id] = c
		return c.key
	}

	if c := r.mostSimilar(tokens, false); c != nil {
		c.addTokens(tokens)
		return c.key
	}
	if len(tokens) == 0 {
		return r.newClass("unknown", nil).key
	}
	return r.newClass("name:"+strings.Join(tokens, "-"), tokens).key
}

// Len returns the number of provider classes.
func (r *Resolver) Len() int {
	return len(r.classes)
}

// mostSimilar returns the earliest class with the highest similarity at or
// above the threshold. With unclaimedOnly, classes holding an id are skipped.
func (r *Resolver) mostSimilar(tokens []string, unclaimedOnly bool) *class {
	if len(tokens) == 0 {
		return nil
	}
	var best *class
	bestScore := 0.0
	for _, c := range r.classes {
		if unclaimedOnly && len(c.ids) > 0 {
			continue
		}
		s := c.similarity(tokens)
		if s >= r.threshold && s > bestScore {
			best, bestScore = c, s
		}
	}
	return best
}

func (r *Resolver) newClass(key string, tokens []string) *class {
	base := key
	for n := 2; r.keys[key]; n++ {
		key = fmt.Sprintf("%s#%d", base, n)
	}
	r.keys[key] = true
	c := &class{key: key}
	c.addTokens(tokens)
	r.classes = append(r.classes, c)
	return c
}
