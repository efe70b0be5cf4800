package main

import (
	"testing"

	"github.com/alecthomas/kong"
)

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("weather-analytics"), kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	if err != nil {
		t.Fatalf("kong.New: %v", err)
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}
	return &cli, kctx
}

func TestCLI_DefaultsToServe(t *testing.T) {
	_, kctx := parse(t, "--env-file", "testdata/test.env")
	if kctx.Command() != "serve" {
		t.Errorf("command = %q, want serve", kctx.Command())
	}
}

func TestCLI_TrainFlags(t *testing.T) {
	cli, kctx := parse(t, "--env-file", "testdata/test.env", "train", "--city", "shanghai", "--days", "90", "--order", "2,1,0")
	if kctx.Command() != "train" {
		t.Fatalf("command = %q, want train", kctx.Command())
	}
	if cli.Train.City != "shanghai" || cli.Train.Days != 90 {
		t.Errorf("history flags = %+v", cli.Train.HistoryFlags)
	}
	if got := cli.Train.Order; len(got) != 3 || got[0] != 2 || got[1] != 1 || got[2] != 0 {
		t.Errorf("order = %v, want [2 1 0]", got)
	}
}

func TestCLI_TuneDefaults(t *testing.T) {
	cli, _ := parse(t, "--env-file", "testdata/test.env", "tune")
	if cli.Tune.MaxP != 3 || cli.Tune.MaxD != 2 || cli.Tune.MaxQ != 3 {
		t.Errorf("grid = (%d, %d, %d), want (3, 2, 3)", cli.Tune.MaxP, cli.Tune.MaxD, cli.Tune.MaxQ)
	}
}

func TestCLI_RunsFlags(t *testing.T) {
	cli, kctx := parse(t, "--env-file", "testdata/test.env", "runs", "--latest", "--city", "beijing")
	if kctx.Command() != "runs" || !cli.Runs.Latest || cli.Runs.City != "beijing" || cli.Runs.Limit != 20 {
		t.Errorf("runs = %+v (command %q)", cli.Runs, kctx.Command())
	}
}
