package classify

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// LabelEncoder maps string labels to dense indices in sorted label order.
type LabelEncoder struct {
	Classes []string
	index   map[string]int
}

// Fit learns the sorted set of distinct labels.
func (e *LabelEncoder) Fit(y []string) {
	seen := make(map[string]struct{}, len(y))
	e.Classes = e.Classes[:0]
	for _, label := range y {
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		e.Classes = append(e.Classes, label)
	}
	sort.Strings(e.Classes)
	e.index = make(map[string]int, len(e.Classes))
	for i, c := range e.Classes {
		e.index[c] = i
	}
}

// Transform encodes y. Labels not seen by Fit are an error.
func (e *LabelEncoder) Transform(y []string) ([]int, error) {
	out := make([]int, len(y))
	for i, label := range y {
		idx, ok := e.index[label]
		if !ok {
			return nil, fmt.Errorf("classify: unseen label %q", label)
		}
		out[i] = idx
	}
	return out, nil
}

// Decode returns the label for index i.
func (e *LabelEncoder) Decode(i int) string {
	return e.Classes[i]
}

// StandardScaler standardizes each column to zero mean and unit population variance.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// Fit computes per-column mean and standard deviation. Constant columns get scale 1.
func (s *StandardScaler) Fit(X [][]float64) {
	if len(X) == 0 {
		s.Mean, s.Scale = nil, nil
		return
	}
	d := len(X[0])
	s.Mean = make([]float64, d)
	s.Scale = make([]float64, d)
	col := make([]float64, len(X))
	for j := 0; j < d; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		s.Mean[j] = mean
		if std == 0 {
			std = 1
		}
		s.Scale[j] = std
	}
}

// Transform returns a standardized copy of X.
func (s *StandardScaler) Transform(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		scaled := make([]float64, len(row))
		for j, v := range row {
			if j < len(s.Mean) {
				scaled[j] = (v - s.Mean[j]) / s.Scale[j]
			} else {
				scaled[j] = v
			}
		}
		out[i] = scaled
	}
	return out
}

// balancedWeights returns n / (k * count_c) for each sample's class.
func balancedWeights(y []int, k int) []float64 {
	counts := make([]float64, k)
	for _, c := range y {
		counts[c]++
	}
	n := float64(len(y))
	w := make([]float64, len(y))
	for i, c := range y {
		w[i] = n / (float64(k) * counts[c])
	}
	return w
}
