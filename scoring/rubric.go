package scoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Item is one analytic rubric dimension.
type Item int

const (
	Cohesion Item = iota
	Syntax
	Vocabulary
	Phraseology
	Grammar
	Conventions
)

// NumItems is the number of rubric items.
const NumItems = 6

// Items lists the rubric in model output order.
var Items = [NumItems]Item{Cohesion, Syntax, Vocabulary, Phraseology, Grammar, Conventions}

var itemNames = [NumItems]string{"cohesion", "syntax", "vocabulary", "phraseology", "grammar", "conventions"}

func (i Item) String() string {
	if i < 0 || int(i) >= NumItems {
		return "Item(" + strconv.Itoa(int(i)) + ")"
	}
	return itemNames[i]
}

// ParseItem resolves a rubric name, ignoring case.
func ParseItem(name string) (Item, bool) {
	for i, n := range itemNames {
		if strings.EqualFold(n, name) {
			return Item(i), true
		}
	}
	return 0, false
}

// Scores holds one score per rubric item. It is a value type; copies are
// independent.
type Scores [NumItems]float64

// Get returns the score for item.
func (s Scores) Get(item Item) float64 {
	return s[item]
}

// Map returns the scores keyed by rubric name.
func (s Scores) Map() map[string]float64 {
	m := make(map[string]float64, NumItems)
	for _, it := range Items {
		m[it.String()] = s[it]
	}
	return m
}

// IsZero reports whether every score is zero, the result for blank text.
func (s Scores) IsZero() bool {
	return s == Scores{}
}

// MarshalJSON writes an object with the rubric names in rubric order.
func (s Scores) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, it := range Items {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(it.String()))
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(s[it], 'f', -1, 64))
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// UnmarshalJSON reads an object holding all six rubric names. Unknown keys
// are an error so a renamed rubric cannot pass silently.
func (s *Scores) UnmarshalJSON(data []byte) error {
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var out Scores
	var seen [NumItems]bool
	for name, v := range raw {
		it, ok := ParseItem(name)
		if !ok {
			return fmt.Errorf("unknown rubric item %q", name)
		}
		out[it] = v
		seen[it] = true
	}
	for _, it := range Items {
		if !seen[it] {
			return fmt.Errorf("missing rubric item %q", it)
		}
	}
	*s = out
	return nil
}
