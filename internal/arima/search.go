package arima

import (
	"context"
	"errors"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/weather-analytics-service/internal/models"
)

// ErrNoOrder is returned when no candidate order could be fitted.
var ErrNoOrder = errors.New("arima: no order could be fitted")

// Candidate is the outcome of fitting one order during a grid search.
type Candidate struct {
	Order models.ARIMAOrder
	AIC   float64
	Err   error
}

// FindOptimalOrder fits every order with p<=maxP, d<=maxD, q<=maxQ and returns
// the one with the lowest AIC. Ties go to the first order in (p, d, q)
// lexicographic order. All candidates are returned for reporting.
func FindOptimalOrder(ctx context.Context, series []float64, maxP, maxD, maxQ int) (models.ARIMAOrder, []Candidate, error) {
	var orders []models.ARIMAOrder
	for p := 0; p <= maxP; p++ {
		for d := 0; d <= maxD; d++ {
			for q := 0; q <= maxQ; q++ {
				orders = append(orders, models.ARIMAOrder{P: p, D: d, Q: q})
			}
		}
	}

	candidates := make([]Candidate, len(orders))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, order := range orders {
		i, order := i, order
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			candidates[i] = Candidate{Order: order, AIC: math.Inf(1)}
			m, err := FitModel(series, order)
			if err != nil {
				candidates[i].Err = err
				return nil
			}
			candidates[i].AIC = m.AIC
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.ARIMAOrder{}, nil, err
	}

	best := -1
	for i, c := range candidates {
		if c.Err != nil {
			continue
		}
		if best < 0 || c.AIC < candidates[best].AIC {
			best = i
		}
	}
	if best < 0 {
		return models.ARIMAOrder{}, candidates, ErrNoOrder
	}
	return candidates[best].Order, candidates, nil
}
