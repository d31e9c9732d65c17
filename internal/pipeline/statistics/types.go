package statistics

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Required CSV columns.
const (
	ColumnGender     = "Gender"
	ColumnState      = "State"
	ColumnExperience = "Experience"
	ColumnIncome     = "Income"
)

var requiredColumns = []string{ColumnGender, ColumnState, ColumnExperience, ColumnIncome}

// Coefficient is a correlation value in [-1, 1], or NaN when undefined.
// NaN has no JSON literal and is written as null.
type Coefficient float64

func (c Coefficient) IsNaN() bool {
	return math.IsNaN(float64(c))
}

func (c Coefficient) MarshalJSON() ([]byte, error) {
	f := float64(c)
	if math.IsNaN(f) {
		return []byte("null"), nil
	}
	if math.IsInf(f, 0) {
		return nil, fmt.Errorf("coefficient %v out of range", f)
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

func (c *Coefficient) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = Coefficient(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*c = Coefficient(f)
	return nil
}

// Report is the statistics document written to the output object.
type Report struct {
	GenderToIncome     Coefficient `json:"gender_to_income_corr"`
	ExperienceToIncome Coefficient `json:"experience_to_income_corr"`
	StateToIncome      Coefficient `json:"state_to_income_corr"`
}

// MarshalIndent renders the report with two-space indentation.
func (r Report) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// ParseError reports input that is not a usable dataset.
type ParseError struct {
	Column string
	Row    int // 1-based data row, 0 when not row specific
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := "parse error"
	if e.Column != "" {
		msg += fmt.Sprintf(": column %q", e.Column)
	}
	if e.Row > 0 {
		msg += fmt.Sprintf(" row %d", e.Row)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
