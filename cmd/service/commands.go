package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-analytics-service/internal/arima"
	"github.com/kjstillabower/weather-analytics-service/internal/dataset"
	"github.com/kjstillabower/weather-analytics-service/internal/models"
	"github.com/kjstillabower/weather-analytics-service/internal/service"
	"github.com/kjstillabower/weather-analytics-service/internal/store"
	"github.com/kjstillabower/weather-analytics-service/internal/validation"
)

// HistoryFlags select the history a command works on. Zero values fall back
// to the analytics defaults from config.
type HistoryFlags struct {
	City string `help:"City to collect; defaults to analytics.default_city."`
	Days int    `help:"Days of history; defaults to analytics.default_days."`
}

func (f HistoryFlags) collect(ctx context.Context, a *app) (string, []models.WeatherRecord, error) {
	city, days := a.cfg.DefaultCity, a.cfg.DefaultDays
	if f.City != "" {
		c, err := validation.ValidateCity(f.City)
		if err != nil {
			return "", nil, err
		}
		city = c
	}
	if f.Days != 0 {
		days = f.Days
	}
	if err := validation.ValidateDays(days, a.cfg.MaxDays); err != nil {
		return "", nil, fmt.Errorf("days %d: %w", days, err)
	}
	records, err := a.collector.PrepareTrainingData(ctx, city, days)
	if err != nil {
		return "", nil, err
	}
	return city, records, nil
}

// TuneCmd reports the AIC of every ARIMA order in a grid.
type TuneCmd struct {
	HistoryFlags `embed:""`

	MaxP    int           `help:"Largest AR order." default:"3"`
	MaxD    int           `help:"Largest differencing order." default:"2"`
	MaxQ    int           `help:"Largest MA order." default:"3"`
	Timeout time.Duration `help:"Overall deadline." default:"5m"`
}

func (c *TuneCmd) Run(g *Globals) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()
	a, err := newApp(ctx, g.ConfigDir, g.Logger)
	if err != nil {
		return err
	}
	defer a.close()

	city, records, err := c.collect(ctx, a)
	if err != nil {
		return err
	}
	best, candidates, err := arima.FindOptimalOrder(ctx, dataset.Temperatures(records), c.MaxP, c.MaxD, c.MaxQ)
	if err != nil {
		return fmt.Errorf("tune %s: %w", city, err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tAIC\tERROR")
	for _, cand := range candidates {
		aic, msg := fmt.Sprintf("%.3f", cand.AIC), ""
		if cand.Err != nil {
			aic, msg = "-", cand.Err.Error()
		}
		fmt.Fprintf(tw, "%v\t%s\t%s\n", cand.Order.Slice(), aic, msg)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("best order for %s over %d days: %v\n", city, len(records), best.Slice())
	return nil
}

// TrainCmd trains on fresh history and prints the result as JSON.
type TrainCmd struct {
	HistoryFlags `embed:""`

	Order   []int         `help:"ARIMA order as p,d,q." default:"1,1,1"`
	Timeout time.Duration `help:"Overall deadline." default:"5m"`
}

func (c *TrainCmd) Run(g *Globals) error {
	if len(c.Order) != 3 {
		return fmt.Errorf("order must have three values, got %v", c.Order)
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()
	a, err := newApp(ctx, g.ConfigDir, g.Logger)
	if err != nil {
		return err
	}
	defer a.close()

	city, records, err := c.collect(ctx, a)
	if err != nil {
		return err
	}
	opts := service.DefaultTrainOptions()
	opts.Order = models.ARIMAOrder{P: c.Order[0], D: c.Order[1], Q: c.Order[2]}
	result, _, err := service.TrainModels(ctx, city, records, opts, g.Logger)
	if err != nil {
		return err
	}
	if a.runs != nil {
		id, err := a.runs.SaveRun(ctx, result)
		if err != nil {
			return fmt.Errorf("save run: %w", err)
		}
		g.Logger.Info("training run saved", zap.Int64("run_id", id))
	}
	return printJSON(result)
}

// RunsCmd lists recorded training runs.
type RunsCmd struct {
	City   string `help:"Only runs for this city."`
	Limit  int    `help:"Maximum runs to list." default:"20"`
	Latest bool   `help:"Print the newest run in full as JSON."`
}

func (c *RunsCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g.ConfigDir, g.Logger)
	if err != nil {
		return err
	}
	defer a.close()
	if a.runs == nil {
		return errors.New("model_store.path is not configured")
	}

	if c.Latest {
		run, err := a.runs.LatestRun(ctx, c.City)
		if errors.Is(err, store.ErrNotFound) {
			fmt.Println("no training runs recorded")
			return nil
		}
		if err != nil {
			return err
		}
		return printJSON(run)
	}

	runs, err := a.runs.Runs(ctx, c.City, c.Limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCITY\tTRAINED AT\tORDER\tLR ACC\tDT ACC\tWARNINGS")
	for _, run := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%v\t%.4f\t%.4f\t%s\n",
			run.ID, run.City, run.TrainedAt.Format(time.RFC3339), run.Result.ARIMAOrder,
			run.Result.LogisticRegression.Accuracy, run.Result.DecisionTree.Accuracy,
			strings.Join(run.Result.Warnings, "; "))
	}
	return tw.Flush()
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
