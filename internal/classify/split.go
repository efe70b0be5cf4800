// Package classify predicts the categorical weather type from daily
// features with a multinomial logistic regression and a CART decision tree.
package classify

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// DefaultSeed makes serving-path splits reproducible.
const DefaultSeed = 42

// ErrTooFewSamples is returned when a split would leave a side empty.
var ErrTooFewSamples = errors.New("classify: too few samples to split")

// Split is the result of a train/test split.
type Split struct {
	XTrain, XTest [][]float64
	YTrain, YTest []string
	Stratified    bool
}

// TestFraction returns the hold-out share used for n rows on the serving path.
func TestFraction(n int) float64 {
	switch {
	case n < 30:
		return 0.1
	case n < 50:
		return 0.2
	default:
		return 0.3
	}
}

// SplitStratified splits X/y with ceil(n*testFraction) test rows. The split
// is class-proportional when every class has at least two rows and each
// side can hold one row per class; otherwise it is a plain shuffled split.
// The side-size gate exists because no class-proportional split can give
// every class a test row when there are fewer test rows than classes.
func SplitStratified(X [][]float64, y []string, testFraction float64, seed int64) (Split, error) {
	n := len(y)
	if len(X) != n {
		return Split{}, fmt.Errorf("classify: %d rows but %d labels", len(X), n)
	}
	nTest := int(math.Ceil(float64(n) * testFraction))
	nTrain := n - nTest
	if nTest < 1 || nTrain < 1 {
		return Split{}, fmt.Errorf("%w: n=%d test_fraction=%.2f", ErrTooFewSamples, n, testFraction)
	}

	classes, byClass := groupByClass(y)
	rng := rand.New(rand.NewSource(seed))

	minCount := n
	for _, idx := range byClass {
		if len(idx) < minCount {
			minCount = len(idx)
		}
	}
	stratify := minCount >= 2 && nTest >= len(classes) && nTrain >= len(classes)

	var testIdx, trainIdx []int
	if stratify {
		alloc := allocate(classes, byClass, nTest, n)
		for i, c := range classes {
			idx := append([]int(nil), byClass[c]...)
			rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
			testIdx = append(testIdx, idx[:alloc[i]]...)
			trainIdx = append(trainIdx, idx[alloc[i]:]...)
		}
	} else {
		perm := rng.Perm(n)
		testIdx, trainIdx = perm[:nTest], perm[nTest:]
	}
	sort.Ints(testIdx)
	sort.Ints(trainIdx)

	s := Split{Stratified: stratify}
	for _, i := range trainIdx {
		s.XTrain = append(s.XTrain, X[i])
		s.YTrain = append(s.YTrain, y[i])
	}
	for _, i := range testIdx {
		s.XTest = append(s.XTest, X[i])
		s.YTest = append(s.YTest, y[i])
	}
	return s, nil
}

func groupByClass(y []string) ([]string, map[string][]int) {
	byClass := make(map[string][]int)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	classes := make([]string, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	return classes, byClass
}

// allocate distributes nTest rows across classes proportionally: floors
// first, then the remainder to the largest fractional parts. Every class
// keeps at least one training row and gives at least one test row.
func allocate(classes []string, byClass map[string][]int, nTest, n int) []int {
	alloc := make([]int, len(classes))
	frac := make([]float64, len(classes))
	total := 0
	for i, c := range classes {
		exact := float64(len(byClass[c])) * float64(nTest) / float64(n)
		alloc[i] = int(math.Floor(exact))
		frac[i] = exact - float64(alloc[i])
		total += alloc[i]
	}
	order := make([]int, len(classes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return frac[order[a]] > frac[order[b]] })
	for _, i := range order {
		if total >= nTest {
			break
		}
		if alloc[i] < len(byClass[classes[i]])-1 {
			alloc[i]++
			total++
		}
	}
	// Guarantee one test row per class, taken from the largest allocations.
	for i := range alloc {
		if alloc[i] > 0 {
			continue
		}
		donor := -1
		for j := range alloc {
			if alloc[j] > 1 && (donor < 0 || alloc[j] > alloc[donor]) {
				donor = j
			}
		}
		if donor < 0 {
			break
		}
		alloc[donor]--
		alloc[i]++
	}
	return alloc
}
