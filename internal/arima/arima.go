// Package arima fits ARIMA(p,d,q) models to daily temperature series by
// conditional sum of squares and produces multi-step forecasts.
package arima

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/kjstillabower/weather-analytics-service/internal/models"
)

var (
	// ErrNotFitted is returned by Forecast before a successful Fit.
	ErrNotFitted = errors.New("arima: model not fitted")
	// ErrSeriesTooShort is returned when the series cannot support the order.
	ErrSeriesTooShort = errors.New("arima: series too short for order")
)

// DefaultOrder is the order used on the serving path.
var DefaultOrder = models.ARIMAOrder{P: 1, D: 1, Q: 1}

const (
	// DefaultTestFraction is the hold-out share used on the serving path.
	DefaultTestFraction = 0.2
	// ForecastSteps is the number of days forecast on the serving path.
	ForecastSteps = 7

	maxFuncEvaluations = 5000
	// penalty is returned for parameters outside the stationary/invertible region.
	penalty = 1e12
)

// Model is a fitted ARIMA model.
type Model struct {
	Order  models.ARIMAOrder
	AR     []float64
	MA     []float64
	Mean   float64 // only non-zero when d == 0
	Sigma2 float64
	AIC    float64

	// tails[k] is the last value of the k-th differenced series, k < d.
	tails     []float64
	diffed    []float64
	residuals []float64
}

// TrainTestSplit splits series at floor(len*(1-testFraction)), preserving order.
func TrainTestSplit(series []float64, testFraction float64) (train, test []float64) {
	idx := int(math.Floor(float64(len(series)) * (1 - testFraction)))
	if idx < 0 {
		idx = 0
	}
	if idx > len(series) {
		idx = len(series)
	}
	return series[:idx], series[idx:]
}

// Difference returns series[i+lag] - series[i].
func Difference(series []float64, lag int) []float64 {
	if lag <= 0 || lag >= len(series) {
		return []float64{}
	}
	out := make([]float64, len(series)-lag)
	for i := range out {
		out[i] = series[i+lag] - series[i]
	}
	return out
}

// FitModel estimates an ARIMA model of the given order.
func FitModel(series []float64, order models.ARIMAOrder) (*Model, error) {
	if order.P < 0 || order.D < 0 || order.Q < 0 {
		return nil, fmt.Errorf("arima: invalid order %v", order.Slice())
	}
	for _, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("arima: series contains non-finite values")
		}
	}

	tails := make([]float64, order.D)
	w := series
	for k := 0; k < order.D; k++ {
		if len(w) == 0 {
			return nil, fmt.Errorf("%w: %d values, order %v", ErrSeriesTooShort, len(series), order.Slice())
		}
		tails[k] = w[len(w)-1]
		w = Difference(w, 1)
	}
	if len(w) < order.P+order.Q+3 {
		return nil, fmt.Errorf("%w: %d values, order %v", ErrSeriesTooShort, len(series), order.Slice())
	}

	m := &Model{Order: order, tails: tails, diffed: w}
	if order.D == 0 {
		m.Mean = stat.Mean(w, nil)
	}

	nParams := order.P + order.Q
	objective := func(x []float64) float64 {
		ar, ma := x[:order.P], x[order.P:]
		if !admissible(ar) || !admissible(ma) {
			return penalty
		}
		sse, _ := css(w, m.Mean, ar, ma)
		if math.IsNaN(sse) || math.IsInf(sse, 0) {
			return penalty
		}
		return sse
	}

	params := make([]float64, nParams)
	if nParams > 0 {
		init := make([]float64, nParams)
		for i := range init {
			init[i] = 0.1
		}
		result, err := optimize.Minimize(
			optimize.Problem{Func: objective},
			init,
			&optimize.Settings{FuncEvaluations: maxFuncEvaluations},
			&optimize.NelderMead{},
		)
		// Evaluation limits still leave the best point found; only outright failure is fatal.
		if result == nil || (err != nil && result.Status == optimize.Failure) {
			return nil, fmt.Errorf("arima: optimize order %v: %w", order.Slice(), err)
		}
		if math.IsNaN(result.F) || math.IsInf(result.F, 0) || result.F >= penalty {
			return nil, fmt.Errorf("arima: no admissible parameters for order %v", order.Slice())
		}
		copy(params, result.X)
	}

	m.AR = append([]float64(nil), params[:order.P]...)
	m.MA = append([]float64(nil), params[order.P:]...)
	sse, resid := css(w, m.Mean, m.AR, m.MA)
	n := float64(len(resid))
	m.residuals = resid
	m.Sigma2 = sse / n
	if m.Sigma2 <= 0 {
		// A perfect fit; keep the likelihood finite.
		m.Sigma2 = 1e-12
	}
	logLik := -n / 2 * (math.Log(2*math.Pi*m.Sigma2) + 1)
	k := float64(nParams + 1)
	if order.D == 0 {
		k++
	}
	m.AIC = 2*k - 2*logLik
	return m, nil
}

// css returns the conditional sum of squares and the residuals, starting at
// index p with pre-sample errors set to zero.
func css(w []float64, mean float64, ar, ma []float64) (float64, []float64) {
	p, q := len(ar), len(ma)
	errs := make([]float64, len(w))
	var sse float64
	for t := p; t < len(w); t++ {
		pred := mean
		for i := 0; i < p; i++ {
			pred += ar[i] * (w[t-1-i] - mean)
		}
		for j := 0; j < q; j++ {
			if t-1-j >= 0 {
				pred += ma[j] * errs[t-1-j]
			}
		}
		errs[t] = w[t] - pred
		sse += errs[t] * errs[t]
	}
	return sse, errs[p:]
}

// admissible is a sufficient condition for stationarity (AR) or
// invertibility (MA): the coefficients' absolute sum is below one.
func admissible(coef []float64) bool {
	var sum float64
	for _, c := range coef {
		sum += math.Abs(c)
	}
	return sum < 1
}

// Forecast returns steps forecasts beyond the end of the fitted series, on
// the original scale.
func (m *Model) Forecast(steps int) []float64 {
	if steps <= 0 {
		return []float64{}
	}
	p, q := len(m.AR), len(m.MA)
	w := append([]float64(nil), m.diffed...)
	// Align residuals with w; the first p values have none.
	e := make([]float64, len(w))
	copy(e[len(w)-len(m.residuals):], m.residuals)

	out := make([]float64, steps)
	for h := 0; h < steps; h++ {
		t := len(w)
		pred := m.Mean
		for i := 0; i < p; i++ {
			pred += m.AR[i] * (w[t-1-i] - m.Mean)
		}
		for j := 0; j < q; j++ {
			if t-1-j >= 0 {
				pred += m.MA[j] * e[t-1-j]
			}
		}
		w = append(w, pred)
		e = append(e, 0)
		out[h] = pred
	}

	for k := m.Order.D - 1; k >= 0; k-- {
		last := m.tails[k]
		for i := range out {
			last += out[i]
			out[i] = last
		}
	}
	return out
}

// Forecaster holds at most one fitted model.
type Forecaster struct {
	model *Model
}

// Fit replaces the forecaster's model. On error the forecaster is left untrained.
func (f *Forecaster) Fit(series []float64, order models.ARIMAOrder) error {
	f.model = nil
	m, err := FitModel(series, order)
	if err != nil {
		return err
	}
	f.model = m
	return nil
}

// Model returns the fitted model, or nil.
func (f *Forecaster) Model() *Model {
	return f.model
}

// Forecast returns steps forecasts, or ErrNotFitted.
func (f *Forecaster) Forecast(steps int) ([]float64, error) {
	if f.model == nil {
		return nil, ErrNotFitted
	}
	return f.model.Forecast(steps), nil
}

// FallbackSeries returns the deterministic substitute forecast
// last + (i%3-1)*0.5 used when fitting fails.
func FallbackSeries(last float64, steps int) []float64 {
	out := make([]float64, steps)
	for i := range out {
		out[i] = last + float64(i%3-1)*0.5
	}
	return out
}

// Evaluate returns hold-out error metrics over the common prefix of actual and predicted.
func Evaluate(actual, predicted []float64) (models.ForecastErrors, error) {
	n := len(actual)
	if len(predicted) < n {
		n = len(predicted)
	}
	if n == 0 {
		return models.ForecastErrors{}, fmt.Errorf("arima: nothing to evaluate")
	}
	abs := make([]float64, n)
	sq := make([]float64, n)
	for i := 0; i < n; i++ {
		d := actual[i] - predicted[i]
		abs[i] = math.Abs(d)
		sq[i] = d * d
	}
	mse := stat.Mean(sq, nil)
	return models.ForecastErrors{
		MAE:  stat.Mean(abs, nil),
		MSE:  mse,
		RMSE: math.Sqrt(mse),
	}, nil
}
