package mind

import (
	"fmt"
	"strings"
)

// Catalog is the fixed set of moods, loaded once at startup and never mutated.
type Catalog struct {
	moods []Mood
	index map[string]int
}

// DefaultMoods returns the moods the built-in persona is written for.
func DefaultMoods() []Mood {
	return []Mood{
		{Name: "happy", Description: "cheerful and bubbly, quick to laugh", Weight: 1},
		{Name: "sad", Description: "a little down, short and quiet answers", Weight: 1},
		{Name: "angry", Description: "grumpy and easily annoyed, sarcastic", Weight: 1},
		{Name: "excited", Description: "hyper and enthusiastic, lots of exclamation marks", Weight: 1},
		{Name: "tired", Description: "sleepy and slow, yawning between words", Weight: 1},
	}
}

// NewCatalog validates moods and builds the lookup index. Entries keep their
// names as given; lookups ignore case and surrounding space.
func NewCatalog(moods []Mood) (*Catalog, error) {
	if len(moods) == 0 {
		return nil, fmt.Errorf("catalog: no moods")
	}
	c := &Catalog{
		moods: make([]Mood, 0, len(moods)),
		index: make(map[string]int, len(moods)),
	}
	for _, m := range moods {
		key := normalizeMoodName(m.Name)
		if key == "" {
			return nil, fmt.Errorf("catalog: mood with empty name")
		}
		if _, dup := c.index[key]; dup {
			return nil, fmt.Errorf("catalog: duplicate mood %q", m.Name)
		}
		c.index[key] = len(c.moods)
		c.moods = append(c.moods, m)
	}
	return c, nil
}

// Lookup returns the catalog entry for name.
func (c *Catalog) Lookup(name string) (Mood, bool) {
	i, ok := c.index[normalizeMoodName(name)]
	if !ok {
		return Mood{}, false
	}
	return c.moods[i], true
}

// Moods returns a copy of all entries in catalog order.
func (c *Catalog) Moods() []Mood {
	out := make([]Mood, len(c.moods))
	copy(out, c.moods)
	return out
}

// Names returns mood names in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.moods))
	for i, m := range c.moods {
		out[i] = m.Name
	}
	return out
}

func (c *Catalog) Len() int { return len(c.moods) }

// pickOther chooses a mood other than current, biased by weight.
// Returns false when the catalog has no alternative.
func (c *Catalog) pickOther(current string, rnd Rand) (Mood, bool) {
	var total float64
	candidates := make([]Mood, 0, len(c.moods))
	for _, m := range c.moods {
		if m.Name == current {
			continue
		}
		candidates = append(candidates, m)
		total += moodWeight(m)
	}
	if len(candidates) == 0 {
		return Mood{}, false
	}
	r := rnd.Float64() * total
	for _, m := range candidates {
		r -= moodWeight(m)
		if r < 0 {
			return m, true
		}
	}
	return candidates[len(candidates)-1], true
}

func moodWeight(m Mood) float64 {
	if m.Weight <= 0 {
		return 1
	}
	return m.Weight
}

func normalizeMoodName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
