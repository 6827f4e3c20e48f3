// Command sync runs one fresh or recovery sync in-process and prints the result as JSON.
//
//	sync -name Faker -tag KR1 -platform kr -year 2025 -mode recovery
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/riftrewind/rewindx/app/worker"
	"github.com/riftrewind/rewindx/pkg/db"
	"github.com/riftrewind/rewindx/pkg/db/memory"
	"github.com/riftrewind/rewindx/pkg/db/postgres"
	"github.com/riftrewind/rewindx/pkg/db/postgres/records"
	"github.com/riftrewind/rewindx/pkg/logging"
	"github.com/riftrewind/rewindx/pkg/orchestrator"
	"github.com/riftrewind/rewindx/pkg/riot"
	"github.com/riftrewind/rewindx/pkg/utils"
	"go.uber.org/zap"
)

type options struct {
	Name     string
	Tag      string
	Platform string
	Year     int
	Mode     string
	Store    string
	Timeout  time.Duration
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	fs.StringVar(&o.Name, "name", "", "riot game name")
	fs.StringVar(&o.Tag, "tag", "", "riot tag line")
	fs.StringVar(&o.Platform, "platform", "euw1", "platform id (euw1, na1, kr, ...)")
	fs.IntVar(&o.Year, "year", 0, "calendar year to sync (defaults to DEFAULT_MATCH_YEAR)")
	fs.StringVar(&o.Mode, "mode", string(orchestrator.ModeFresh), "fresh or recovery")
	fs.StringVar(&o.Store, "store", "postgres", "record store: postgres or memory")
	fs.DurationVar(&o.Timeout, "timeout", 30*time.Minute, "give up after this long")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.Name == "" || o.Tag == "" {
		return o, errors.New("-name and -tag are required")
	}
	switch orchestrator.Mode(o.Mode) {
	case orchestrator.ModeFresh, orchestrator.ModeRecovery:
	default:
		return o, fmt.Errorf("unknown mode %q", o.Mode)
	}
	if o.Store != "postgres" && o.Store != "memory" {
		return o, fmt.Errorf("unknown store %q", o.Store)
	}
	return o, nil
}

func openStore(ctx context.Context, logger *zap.Logger, kind string) (db.Store, error) {
	if kind == "memory" {
		return memory.New(), nil
	}
	return records.NewWithPoolConfig(ctx, logger, utils.Env("REWIND_DB", "rewind"), *postgres.GetPoolConfigForComponent("cli"))
}

// run executes the sync on the in-process job backend and writes the result to out.
func run(ctx context.Context, logger *zap.Logger, o options, store db.Store, api riot.API, out io.Writer) error {
	cfg := worker.ConfigFromEnv()
	cfg.Backend = worker.BackendLocal

	core, err := worker.NewCore(logger, store, api, nil, nil, nil, cfg)
	if err != nil {
		return err
	}
	defer core.Close()

	ctx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	res, runErr := core.Orchestrator.Run(ctx, orchestrator.Request{
		GameName: o.Name,
		TagLine:  o.Tag,
		Platform: o.Platform,
		Year:     o.Year,
		Mode:     orchestrator.Mode(o.Mode),
	})
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	return runErr
}

func main() {
	_ = godotenv.Load()

	o, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := logging.New()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(ctx, logger, o.Store)
	if err != nil {
		logger.Fatal("Unable to open record store", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	api := riot.New(logger.Named("riot"), riot.OptsFromEnv())
	if err := run(ctx, logger, o, store, api, os.Stdout); err != nil {
		logger.Error("Sync failed", zap.Error(err))
		cancel()
		os.Exit(1)
	}
}
