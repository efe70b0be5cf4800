package classify

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const logisticMaxIterations = 5000

// logisticRegression is a multinomial softmax model with an L2 penalty on
// the coefficients (not the intercepts), fitted by L-BFGS.
type logisticRegression struct {
	C float64

	k, d int
	coef *mat.Dense // k x d
	bias []float64  // k
}

func newLogisticRegression() *logisticRegression {
	return &logisticRegression{C: 1}
}

func (m *logisticRegression) fit(X [][]float64, y []int, k int, sw []float64) error {
	n := len(X)
	if n == 0 {
		return fmt.Errorf("classify: logistic regression: no samples")
	}
	d := len(X[0])
	xm := mat.NewDense(n, d, nil)
	for i, row := range X {
		xm.SetRow(i, row)
	}
	nCoef := k * d

	// loss fills diff with C*sw_i*(p_ik - 1{y_i=k}) and returns the penalized loss.
	diff := mat.NewDense(n, k, nil)
	scores := mat.NewDense(n, k, nil)
	loss := func(x []float64) float64 {
		w := mat.NewDense(k, d, x[:nCoef])
		b := x[nCoef:]
		scores.Mul(xm, w.T())
		var total float64
		row := make([]float64, k)
		for i := 0; i < n; i++ {
			mat.Row(row, i, scores)
			floats.Add(row, b)
			lse := floats.LogSumExp(row)
			total -= sw[i] * (row[y[i]] - lse)
			for c := 0; c < k; c++ {
				p := math.Exp(row[c] - lse)
				if c == y[i] {
					p--
				}
				diff.Set(i, c, m.C*sw[i]*p)
			}
		}
		return m.C*total + 0.5*floats.Dot(x[:nCoef], x[:nCoef])
	}

	problem := optimize.Problem{
		Func: loss,
		Grad: func(grad, x []float64) {
			loss(x)
			g := mat.NewDense(k, d, grad[:nCoef])
			g.Mul(diff.T(), xm)
			floats.Add(grad[:nCoef], x[:nCoef])
			for c := 0; c < k; c++ {
				grad[nCoef+c] = mat.Sum(diff.ColView(c))
			}
		},
	}

	init := make([]float64, nCoef+k)
	result, err := optimize.Minimize(problem, init,
		&optimize.Settings{MajorIterations: logisticMaxIterations},
		&optimize.LBFGS{})
	// Line-search failures near the optimum still leave the best point found.
	if result == nil {
		return fmt.Errorf("classify: logistic regression: %w", err)
	}
	if math.IsNaN(result.F) || math.IsInf(result.F, 0) {
		return fmt.Errorf("classify: logistic regression: loss diverged")
	}

	params := append([]float64(nil), result.X...)
	m.k, m.d = k, d
	m.coef = mat.NewDense(k, d, params[:nCoef])
	m.bias = params[nCoef:]
	return nil
}

func (m *logisticRegression) predict(row []float64) int {
	best, bestScore := 0, math.Inf(-1)
	for c := 0; c < m.k; c++ {
		s := m.bias[c] + floats.Dot(m.coef.RawRowView(c), row)
		if s > bestScore {
			best, bestScore = c, s
		}
	}
	return best
}

// importance is the absolute coefficient vector. With two classes the
// decision depends only on the difference of the class rows.
func (m *logisticRegression) importance() []float64 {
	out := make([]float64, m.d)
	if m.k == 2 {
		floats.SubTo(out, m.coef.RawRowView(1), m.coef.RawRowView(0))
	} else {
		copy(out, m.coef.RawRowView(0))
	}
	for i, v := range out {
		out[i] = math.Abs(v)
	}
	return out
}
