package classify

import (
	"fmt"
	"sort"
	"strings"
)

// ClassScores are per-class precision, recall and F1 with the class support.
type ClassScores struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

// Report summarizes predictions against true labels. Classes is the sorted
// union of true and predicted labels; ConfusionMatrix rows are true labels.
type Report struct {
	Accuracy        float64                `json:"accuracy"`
	Classes         []string               `json:"classes"`
	PerClass        map[string]ClassScores `json:"per_class"`
	MacroAvg        ClassScores            `json:"macro_avg"`
	WeightedAvg     ClassScores            `json:"weighted_avg"`
	ConfusionMatrix [][]int                `json:"confusion_matrix"`
}

// NewReport scores yPred against yTrue. Undefined ratios count as zero.
func NewReport(yTrue, yPred []string) (Report, error) {
	if len(yTrue) != len(yPred) {
		return Report{}, fmt.Errorf("classify: %d labels but %d predictions", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return Report{}, fmt.Errorf("classify: nothing to evaluate")
	}

	seen := make(map[string]int)
	for _, l := range append(append([]string(nil), yTrue...), yPred...) {
		seen[l] = 0
	}
	classes := make([]string, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	for i, c := range classes {
		seen[c] = i
	}

	k := len(classes)
	cm := make([][]int, k)
	for i := range cm {
		cm[i] = make([]int, k)
	}
	correct := 0
	for i := range yTrue {
		t, p := seen[yTrue[i]], seen[yPred[i]]
		cm[t][p]++
		if t == p {
			correct++
		}
	}

	r := Report{
		Accuracy:        float64(correct) / float64(len(yTrue)),
		Classes:         classes,
		PerClass:        make(map[string]ClassScores, k),
		ConfusionMatrix: cm,
	}
	n := float64(len(yTrue))
	for i, c := range classes {
		var tp, predicted, support int
		tp = cm[i][i]
		for j := 0; j < k; j++ {
			predicted += cm[j][i]
			support += cm[i][j]
		}
		s := ClassScores{
			Precision: ratio(tp, predicted),
			Recall:    ratio(tp, support),
			Support:   support,
		}
		if s.Precision+s.Recall > 0 {
			s.F1Score = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
		}
		r.PerClass[c] = s

		r.MacroAvg.Precision += s.Precision / float64(k)
		r.MacroAvg.Recall += s.Recall / float64(k)
		r.MacroAvg.F1Score += s.F1Score / float64(k)
		w := float64(support) / n
		r.WeightedAvg.Precision += s.Precision * w
		r.WeightedAvg.Recall += s.Recall * w
		r.WeightedAvg.F1Score += s.F1Score * w
	}
	r.MacroAvg.Support = len(yTrue)
	r.WeightedAvg.Support = len(yTrue)
	return r, nil
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

// String renders the report as a fixed-width table.
func (r Report) String() string {
	width := len("weighted avg")
	for _, c := range r.Classes {
		if len(c) > width {
			width = len(c)
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%*s %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	for _, c := range r.Classes {
		s := r.PerClass[c]
		fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, c, s.Precision, s.Recall, s.F1Score, s.Support)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s %9s %9s %9.2f %9d\n", width, "accuracy", "", "", r.Accuracy, r.WeightedAvg.Support)
	for _, row := range []struct {
		name string
		s    ClassScores
	}{{"macro avg", r.MacroAvg}, {"weighted avg", r.WeightedAvg}} {
		fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, row.name, row.s.Precision, row.s.Recall, row.s.F1Score, row.s.Support)
	}
	return b.String()
}
