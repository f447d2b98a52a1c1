package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"wxvault/internal/climo"
	"wxvault/internal/config"
	"wxvault/internal/driver"
	_ "wxvault/internal/drivers/dummy"
	"wxvault/internal/drivers/jsonout"
	"wxvault/internal/engine"
	"wxvault/internal/store"
)

var cli struct {
	Config             string   `arg:"" help:"Path to the YAML configuration file." type:"existingfile"`
	BackfillHistorical []string `name:"backfill-historical" sep:"," placeholder:"STATIONS" help:"Backfill the historical range for empty stations; 'all' for every station."`
	NoOutput           bool     `name:"no-output" xor:"output" help:"Skip the output phase."`
	OutputOnly         bool     `name:"output-only" xor:"output" help:"Run only the output phase."`
	Remove             []string `sep:"," placeholder:"STATIONS" help:"Remove stations from the archive and exit."`
	NoCheckClimo       bool     `name:"no-check-climo" help:"Skip the climatology refresh."`
	Strict             bool     `help:"Stop at the first failure instead of skipping units."`
	MetricsListen      string   `name:"metrics-listen" placeholder:"ADDR" help:"Serve Prometheus metrics on this address during the run."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("wxvault"),
		kong.Description("Forecast archive and verification engine."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := store.Open(cfg.Database)
	if err != nil {
		log.Fatalf("open archive: %v", err)
	}
	defer db.Close()

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	if len(cli.Remove) > 0 {
		for _, id := range cli.Remove {
			if err := st.RemoveStation(id); err != nil {
				log.Fatalf("remove station %s: %v", id, err)
			}
			log.Printf("removed station %s", id)
		}
		return
	}

	if cli.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(cli.MetricsListen, mux); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	opts := engine.Options{
		Strict:       cli.Strict,
		NoOutput:     cli.NoOutput,
		OutputOnly:   cli.OutputOnly,
		NoCheckClimo: cli.NoCheckClimo,
	}
	if len(cli.BackfillHistorical) > 0 {
		opts.Backfill = true
		if !(len(cli.BackfillHistorical) == 1 && cli.BackfillHistorical[0] == "all") {
			opts.BackfillStations = cli.BackfillHistorical
		}
	}

	clock := clockwork.NewRealClock()
	driver.Register("json", jsonout.New(cfg.SiteDataDir, clock))

	climoSource := climo.New(cfg.SiteDataDir, cfg.ClimoStartYear)
	eng, err := engine.New(cfg, st, driver.Default(), climoSource, clock, opts)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	summary, err := eng.Run(ctx)
	if err != nil {
		log.Fatalf("run: %v", err)
	}
	if summary.UnitsFailed > 0 {
		os.Exit(1)
	}
}
