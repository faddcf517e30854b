package label

import "fmt"

// Matrix is the label matrix: one row per document, one column per LF,
// entries are votes with abstain as zero value.
type Matrix struct {
	Docs  []string `json:"docs" yaml:"docs"`
	LFs   []string `json:"lfs" yaml:"lfs"`
	Cells [][]Vote `json:"cells" yaml:"cells"`
}

// NewMatrix allocates an all-abstain matrix for the given row and
// column orders.
func NewMatrix(docs, lfs []string) *Matrix {
	cells := make([][]Vote, len(docs))
	for i := range cells {
		cells[i] = make([]Vote, len(lfs))
	}
	return &Matrix{
		Docs:  docs,
		LFs:   lfs,
		Cells: cells,
	}
}

func (m *Matrix) At(doc, lf int) Vote {
	return m.Cells[doc][lf]
}

func (m *Matrix) Set(doc, lf int, v Vote) {
	m.Cells[doc][lf] = v
}

// DocIndex returns the row for a document ID, -1 when absent.
func (m *Matrix) DocIndex(docID string) int {
	for i, d := range m.Docs {
		if d == docID {
			return i
		}
	}
	return -1
}

// LFIndex returns the column for an LF name, -1 when absent.
func (m *Matrix) LFIndex(name string) int {
	for j, n := range m.LFs {
		if n == name {
			return j
		}
	}
	return -1
}

// NonAbstain counts cast votes across the matrix.
func (m *Matrix) NonAbstain() int {
	n := 0
	for _, row := range m.Cells {
		for _, v := range row {
			if v != Abstain {
				n++
			}
		}
	}
	return n
}

// Coverage is the fraction of documents with at least one cast vote.
func (m *Matrix) Coverage() float64 {
	if len(m.Docs) == 0 {
		return 0
	}
	covered := 0
	for _, row := range m.Cells {
		for _, v := range row {
			if v != Abstain {
				covered++
				break
			}
		}
	}
	return float64(covered) / float64(len(m.Docs))
}

func (m *Matrix) validate() error {
	if len(m.Cells) != len(m.Docs) {
		return fmt.Errorf("matrix has %d rows for %d docs", len(m.Cells), len(m.Docs))
	}
	for i, row := range m.Cells {
		if len(row) != len(m.LFs) {
			return fmt.Errorf("matrix row %d has %d cells for %d lfs", i, len(row), len(m.LFs))
		}
	}
	return nil
}
