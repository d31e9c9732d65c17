package statistics

import (
	"bytes"
	"encoding/csv"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decimalPattern is plain decimal or exponent notation. strconv alone would
// also take Go literal forms such as 1_000, 0x1p4 and Inf.
var decimalPattern = regexp.MustCompile(`^[+-]?(?:[0-9]+\.?[0-9]*|\.[0-9]+)(?:[eE][+-]?[0-9]+)?$`)

// Dataset holds the four required columns of an uploaded CSV, row aligned.
type Dataset struct {
	Gender     []string
	State      []string
	Experience []float64
	Income     []float64
}

// Len returns the number of data rows.
func (d *Dataset) Len() int {
	return len(d.Income)
}

// ParseDataset decodes CSV bytes with a header row. Extra columns are
// ignored; header names are matched after trimming surrounding spaces.
func ParseDataset(data []byte) (*Dataset, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, &ParseError{Reason: "input is not valid UTF-8"}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ParseError{Reason: "input is empty"}
	}

	header, err := csv.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return nil, &ParseError{Reason: "malformed CSV header", Err: err}
	}
	positions, err := locateColumns(header)
	if err != nil {
		return nil, err
	}

	df := dataframe.ReadCSV(bytes.NewReader(data),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues([]string{}),
	)
	if df.Err != nil {
		return nil, &ParseError{Reason: "malformed CSV", Err: df.Err}
	}
	if df.Nrow() == 0 {
		return nil, &ParseError{Reason: "no data rows"}
	}

	// gota renames repeated headers, so columns are addressed by position
	names := df.Names()
	records := func(column string) []string {
		return df.Col(names[positions[column]]).Records()
	}

	gender, err := parseNominal(ColumnGender, records(ColumnGender))
	if err != nil {
		return nil, err
	}
	state, err := parseNominal(ColumnState, records(ColumnState))
	if err != nil {
		return nil, err
	}
	experience, err := parseNumeric(ColumnExperience, records(ColumnExperience))
	if err != nil {
		return nil, err
	}
	income, err := parseNumeric(ColumnIncome, records(ColumnIncome))
	if err != nil {
		return nil, err
	}

	return &Dataset{
		Gender:     gender,
		State:      state,
		Experience: experience,
		Income:     income,
	}, nil
}

// locateColumns maps each required column to its index in header.
func locateColumns(header []string) (map[string]int, error) {
	seen := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if _, dup := seen[name]; dup && isRequired(name) {
			return nil, &ParseError{Column: name, Reason: "duplicate column"}
		}
		seen[name] = i
	}

	positions := make(map[string]int, len(requiredColumns))
	for _, required := range requiredColumns {
		i, ok := seen[required]
		if !ok {
			return nil, &ParseError{Column: required, Reason: "missing required column"}
		}
		positions[required] = i
	}
	return positions, nil
}

func isRequired(name string) bool {
	for _, required := range requiredColumns {
		if name == required {
			return true
		}
	}
	return false
}

// parseNominal keeps labels verbatim but rejects blank cells.
func parseNominal(column string, records []string) ([]string, error) {
	for i, cell := range records {
		if strings.TrimSpace(cell) == "" {
			return nil, &ParseError{Column: column, Row: i + 1, Reason: "empty value"}
		}
	}
	return records, nil
}

func parseNumeric(column string, records []string) ([]float64, error) {
	values := make([]float64, len(records))
	for i, raw := range records {
		cell := strings.TrimSpace(raw)
		if cell == "" {
			return nil, &ParseError{Column: column, Row: i + 1, Reason: "empty value"}
		}
		if !decimalPattern.MatchString(cell) {
			return nil, &ParseError{Column: column, Row: i + 1, Reason: "not a number"}
		}
		// out of range values fail here rather than becoming Inf
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, &ParseError{Column: column, Row: i + 1, Reason: "not a number", Err: err}
		}
		values[i] = v
	}
	return values, nil
}
