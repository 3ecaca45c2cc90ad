package scoring

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Scale maps raw model outputs onto the displayed score range.
//
// A raw value r becomes Slope*r + Intercept, rounded half-to-even to the
// nearest Step and clamped to [Min, Max].
type Scale struct {
	Slope     float64 `yaml:"slope" json:"slope"`
	Intercept float64 `yaml:"intercept" json:"intercept"`
	Min       float64 `yaml:"min" json:"min"`
	Max       float64 `yaml:"max" json:"max"`
	Step      float64 `yaml:"step" json:"step"`
}

// DefaultScale stretches the model's 1-5 outputs onto 1-10 in half points.
var DefaultScale = Scale{Slope: 2.25, Intercept: -1.25, Min: 1, Max: 10, Step: 0.5}

// Validate checks that the scale is usable.
func (s Scale) Validate() error {
	if s.Step <= 0 {
		return errors.New("scale step must be positive")
	}
	if s.Max <= s.Min {
		return fmt.Errorf("scale max %v must exceed min %v", s.Max, s.Min)
	}
	if s.Slope == 0 {
		return errors.New("scale slope must be non-zero")
	}
	return nil
}

// Apply converts one raw model output.
func (s Scale) Apply(raw float64) float64 {
	return s.Quantize(s.Slope*raw + s.Intercept)
}

// Quantize rounds v to the nearest Step and clamps it to [Min, Max].
func (s Scale) Quantize(v float64) float64 {
	v = math.RoundToEven(v/s.Step) * s.Step
	v = min(max(v, s.Min), s.Max)
	// Step multiples such as 0.05*9 carry float noise; trim it at the
	// step's own precision.
	p := math.Pow10(decimals(s.Step))
	return math.Round(v*p) / p
}

// decimals counts the fractional digits of step, e.g. 2 for 0.25.
func decimals(step float64) int {
	str := strconv.FormatFloat(step, 'f', -1, 64)
	_, frac, ok := strings.Cut(str, ".")
	if !ok {
		return 0
	}
	return len(frac)
}

// Format renders a score against the scale maximum, e.g. "7.5/10.0". Scores
// keep as many decimals as Step, at least one.
func (s Scale) Format(v float64) string {
	return fmt.Sprintf("%.*f/%.1f", max(1, decimals(s.Step)), v, s.Max)
}
