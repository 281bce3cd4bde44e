package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/oceanops/moorsync/internal/ingest"
	"github.com/oceanops/moorsync/internal/reconcile"
	"github.com/oceanops/moorsync/internal/state"
	"github.com/oceanops/moorsync/internal/store"
)

type CLI struct {
	PGHost      string `name:"pg-host" env:"MOORSYNC_PG_HOST" default:"localhost" help:"Engineering database host."`
	PGDatabase  string `name:"pg-database" env:"MOORSYNC_PG_DATABASE" default:"moorings" help:"Engineering database name."`
	PGUser      string `name:"pg-user" env:"MOORSYNC_PG_USER" default:"moorsync" help:"Database user."`
	PGPassword  string `name:"pg-password" env:"MOORSYNC_PG_PASSWORD" help:"Database password."`
	StateDB     string `name:"state-db" env:"MOORSYNC_STATE_DB" default:"data/moorsync.db" help:"Path to the local SQLite state database."`
	Testing     bool   `env:"MOORSYNC_TESTING" help:"Compute alignments and metadata without writing to the engineering database."`
	MetricsAddr string `name:"metrics-addr" env:"MOORSYNC_METRICS_ADDR" help:"Serve Prometheus metrics on this address while running."`

	Reconcile ReconcileCmd `cmd:"" help:"Reconcile NDBC sensor files against engineering tables."`
	Reset     ResetCmd     `cmd:"" help:"Bulk-reset a parameter column to the missing-data sentinel over a date range."`
	Catalog   CatalogCmd   `cmd:"" help:"List SOFS catalog files newer than the stored checkpoint."`
}

func (cli *CLI) connect(ctx context.Context) (*store.Postgres, error) {
	return store.Connect(ctx, store.Config{
		Host:     cli.PGHost,
		Database: cli.PGDatabase,
		User:     cli.PGUser,
		Password: cli.PGPassword,
	})
}

func (cli *CLI) openState() (*state.Store, error) {
	db, err := sql.Open("sqlite", cli.StateDB)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := state.New(db)
	if err := st.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate state db: %w", err)
	}
	return st, nil
}

type ReconcileCmd struct {
	Parameters []string `short:"p" help:"Feed parameters to reconcile (default: derived from each filename)."`
	Files      []string `arg:"" type:"existingfile" help:"NDBC ASCII files (.txt or .txt.gz)."`
}

func (r *ReconcileCmd) Run(cli *CLI) error {
	ctx := context.Background()

	pg, err := cli.connect(ctx)
	if err != nil {
		return err
	}
	defer pg.Close()

	st, err := cli.openState()
	if err != nil {
		return err
	}

	driver := reconcile.NewDriver(pg, reconcile.NewParamMap(), cli.Testing)

	var errs []error
	for _, path := range r.Files {
		series, err := ingest.ParseNDBCFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if series.Len() == 0 {
			log.Printf("%s: no samples, skipping", path)
			continue
		}

		parameters := r.Parameters
		if len(parameters) == 0 {
			p, _ := ingest.MetadataFromFilename(path)
			parameters = []string{p}
		}

		meta, err := driver.Reconcile(ctx, series, parameters)
		if meta != nil {
			if rerr := st.RecordRun(meta, err); rerr != nil {
				log.Printf("record run: %v", rerr)
			}
			log.Printf("%s: station=%s parameters=%v tables=%d range=[%s, %s]",
				path, meta.Station, meta.Parameters, len(meta.Tables),
				meta.Start.Format(time.RFC3339), meta.End.Format(time.RFC3339))
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

type ResetCmd struct {
	Station   string    `arg:"" help:"Station name (e.g. SOFS)."`
	Parameter string    `arg:"" help:"Feed parameter (sst or sss)."`
	Start     time.Time `arg:"" format:"2006-01-02" help:"Range start date."`
	End       time.Time `arg:"" format:"2006-01-02" help:"Range end date."`
}

func (r *ResetCmd) Run(cli *CLI) error {
	ctx := context.Background()

	pg, err := cli.connect(ctx)
	if err != nil {
		return err
	}
	defer pg.Close()

	driver := reconcile.NewDriver(pg, reconcile.NewParamMap(), cli.Testing)
	tables, err := driver.ResetParameter(ctx, r.Station, r.Parameter, r.Start, r.End)
	if err != nil {
		return err
	}
	log.Printf("reset %s for %s across %d tables", r.Parameter, r.Station, len(tables))
	return nil
}

type CatalogCmd struct {
	CatalogURL       string `help:"Override the catalog base URL."`
	DataURL          string `help:"Override the data base URL."`
	UpdateCheckpoint bool   `help:"Advance the checkpoint past the newest listed file."`
}

func (c *CatalogCmd) Run(cli *CLI) error {
	st, err := cli.openState()
	if err != nil {
		return err
	}

	since, err := st.Checkpoint("sofs")
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	client := ingest.NewSOFSClient(c.CatalogURL, c.DataURL)
	files, err := client.Files()
	if err != nil {
		return err
	}

	fresh := ingest.NewSince(files, since)
	log.Printf("catalog: %d files listed, %d newer than checkpoint %s", len(files), len(fresh), since.Format(time.RFC3339))
	for _, f := range fresh {
		fmt.Printf("%s\t%s\n", f.UploadedAt.Format(time.RFC3339), f.Name)
	}

	if c.UpdateCheckpoint && len(fresh) > 0 {
		newest := fresh[len(fresh)-1].UploadedAt
		if err := st.SetCheckpoint("sofs", newest); err != nil {
			return fmt.Errorf("update checkpoint: %w", err)
		}
		log.Printf("checkpoint advanced to %s", newest.Format(time.RFC3339))
	}
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("moorsync"),
		kong.Description("Reconciles externally sourced SST/SSS time series against stored engineering tables."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	if cli.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cli.MetricsAddr, mux); err != nil {
				log.Printf("metrics listener: %v", err)
			}
		}()
	}

	ctx.FatalIfErrorf(ctx.Run(&cli))
}
