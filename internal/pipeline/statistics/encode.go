package statistics

// EncodedColumn maps nominal labels to integer codes in order of first
// appearance.
type EncodedColumn struct {
	Labels []string // Labels[code] is the label for code
	Codes  []int    // one code per input row
	index  map[string]int
}

// EncodeLabels assigns 0 to the first distinct label seen, 1 to the next and
// so on. Equal inputs always produce equal codes.
func EncodeLabels(values []string) EncodedColumn {
	col := EncodedColumn{
		Labels: make([]string, 0),
		Codes:  make([]int, len(values)),
		index:  make(map[string]int),
	}
	for i, v := range values {
		code, ok := col.index[v]
		if !ok {
			code = len(col.Labels)
			col.index[v] = code
			col.Labels = append(col.Labels, v)
		}
		col.Codes[i] = code
	}
	return col
}

// Code returns the code assigned to label.
func (c EncodedColumn) Code(label string) (int, bool) {
	code, ok := c.index[label]
	return code, ok
}

// Floats returns the codes as float64 values for numeric routines.
func (c EncodedColumn) Floats() []float64 {
	out := make([]float64, len(c.Codes))
	for i, code := range c.Codes {
		out[i] = float64(code)
	}
	return out
}
