package domain

import (
	"fmt"
	"strconv"
)

// ─── Grading ────────────────────────────────────────────────────────────────

// Grade is one band of a grading scheme.
type Grade struct {
	Name   string  `json:"name" toml:"name"`
	Point  float64 `json:"point" toml:"point"`
	Min    float64 `json:"min" toml:"min"`
	Max    float64 `json:"max" toml:"max"`
	IsPass bool    `json:"is_pass" toml:"is_pass"`
}

// GradingScheme is an ordered list of grade bands.
type GradingScheme struct {
	Name  string  `json:"name" toml:"name"`
	Bands []Grade `json:"bands" toml:"bands"`
}

// GradeFor returns the first band with Min <= score <= Max.
// The boolean is false when no band matches; that is not an error.
func (s GradingScheme) GradeFor(score float64) (Grade, bool) {
	for _, g := range s.Bands {
		if g.Min <= score && score <= g.Max {
			return g, true
		}
	}
	return Grade{}, false
}

// DefaultGradingScheme is the five-point scheme used when none is configured.
func DefaultGradingScheme() GradingScheme {
	return GradingScheme{
		Name: "Five Point",
		Bands: []Grade{
			{Name: "A", Point: 5, Min: 70, Max: 100, IsPass: true},
			{Name: "B", Point: 4, Min: 60, Max: 69.99, IsPass: true},
			{Name: "C", Point: 3, Min: 50, Max: 59.99, IsPass: true},
			{Name: "D", Point: 2, Min: 45, Max: 49.99, IsPass: true},
			{Name: "E", Point: 1, Min: 40, Max: 44.99, IsPass: true},
			{Name: "F", Point: 0, Min: 0, Max: 39.99, IsPass: false},
		},
	}
}

// ─── GPA ────────────────────────────────────────────────────────────────────

// HonourBand maps a CGPA range to a class of degree.
type HonourBand struct {
	Name  string  `json:"name" toml:"name"`
	Lower float64 `json:"lower" toml:"lower"`
	Upper float64 `json:"upper" toml:"upper"`
}

// DefaultHonours is the classification used when none is configured.
func DefaultHonours() []HonourBand {
	return []HonourBand{
		{Name: "First Class", Lower: 4.50, Upper: 5.00},
		{Name: "Second Class Upper", Lower: 3.50, Upper: 4.49},
		{Name: "Second Class Lower", Lower: 2.40, Upper: 3.49},
		{Name: "Third Class", Lower: 1.50, Upper: 2.39},
		{Name: "Pass", Lower: 1.00, Upper: 1.49},
	}
}

// Classify returns the first honour band containing cgpa. A cgpa of zero
// or below is never classified.
func Classify(bands []HonourBand, cgpa float64) (HonourBand, bool) {
	if cgpa <= 0 {
		return HonourBand{}, false
	}
	for _, b := range bands {
		if b.Lower <= cgpa && cgpa <= b.Upper {
			return b, true
		}
	}
	return HonourBand{}, false
}

// ComputeGPA averages grade points over the Approved entries weighted by
// course units.
func ComputeGPA(entries []ResultEntry) (float64, error) {
	var points float64
	var credits int
	for _, e := range entries {
		if e.Status != ResultApproved {
			continue
		}
		points += e.GradePoint * float64(e.Units)
		credits += e.Units
	}
	if points == 0 {
		return 0, nil
	}
	if credits == 0 {
		return 0, fmt.Errorf("%w: %.2f points", ErrInconsistentCredits, points)
	}
	return TruncateGPA(points / float64(credits)), nil
}

// TruncateGPA keeps the first four characters of the shortest decimal
// representation of v, so 3.999 becomes 3.99 rather than 4.00.
func TruncateGPA(v float64) float64 {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if len(s) > 4 {
		s = s[:4]
	}
	out, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return out
}
