package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-analytics-service/internal/observability"
)

// CLI is the command tree. Serve is the default command.
type CLI struct {
	EnvFile   kongdotenv.ENVFileConfig `short:"e" help:"Path to a .env file loaded before flags are resolved." default:".env"`
	ConfigDir string                   `help:"Directory holding {ENV_NAME}.yaml and secrets.yaml." default:"config" env:"CONFIG_DIR" type:"path"`

	Serve ServeCmd `cmd:"" default:"1" help:"Run the HTTP API server."`
	Tune  TuneCmd  `cmd:"" help:"Grid-search ARIMA orders over a city's history."`
	Train TrainCmd `cmd:"" help:"Collect history, train models and record the run."`
	Runs  RunsCmd  `cmd:"" help:"List recorded training runs."`
}

// Globals is bound into every command's Run.
type Globals struct {
	ConfigDir string
	Logger    *zap.Logger
}

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("weather-analytics"),
		kong.Description("Weather analytics API: historical collection, forecasting and advice."),
		kong.UsageOnError(),
	)
	if err := kctx.Run(&Globals{ConfigDir: cli.ConfigDir, Logger: logger}); err != nil {
		logger.Error("command failed", zap.String("command", kctx.Command()), zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
