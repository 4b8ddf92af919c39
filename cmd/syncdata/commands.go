package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/subcommands"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finwerk/portfolio-engine/internal/model"
	"github.com/finwerk/portfolio-engine/internal/store"
)

// dump is the on-disk exchange format: the full registry, ledger, and
// holdings of one portfolio. The assets' cache pairs are included for
// inspection but ignored on import — propagation rebuilds them from the
// ledger, so an edited dump cannot smuggle in an inconsistent cache.
type dump struct {
	ExportedAt time.Time       `json:"exported_at"`
	Assets     []model.Asset   `json:"assets"`
	Prices     []model.Price   `json:"prices"`
	Holdings   []model.Holding `json:"holdings"`
}

func connect(ctx context.Context, url string) (*store.PostgresStore, func(), error) {
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		return nil, nil, fmt.Errorf("no database URL: pass -database-url or set DATABASE_URL")
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	return store.NewPostgresStore(pool), pool.Close, nil
}

// --- export ---

type exportCmd struct {
	file string
	db   string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "export assets, prices, and holdings to a JSON file" }
func (*exportCmd) Usage() string {
	return `export [-file <path>] [-database-url <url>]

  Writes the full asset registry, price ledger, and holdings to a JSON file.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.file, "file", "portfolio_backup.json", "output file path")
	f.StringVar(&c.db, "database-url", "", "pgx connection string (default: DATABASE_URL)")
}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	st, closeFn, err := connect(ctx, c.db)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitFailure
	}
	defer closeFn()

	assets, err := st.ListAssets(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error listing assets:", err)
		return subcommands.ExitFailure
	}

	var prices []model.Price
	for _, a := range assets {
		history, err := st.ListPrices(ctx, a.ISIN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing prices for %s: %v\n", a.ISIN, err)
			return subcommands.ExitFailure
		}
		prices = append(prices, history...)
	}

	holdings, err := st.ListHoldings(ctx, store.HoldingFilter{})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error listing holdings:", err)
		return subcommands.ExitFailure
	}

	d := dump{
		ExportedAt: time.Now().UTC(),
		Assets:     assets,
		Prices:     prices,
		Holdings:   holdings,
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error encoding dump:", err)
		return subcommands.ExitFailure
	}
	if err := os.WriteFile(c.file, data, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "Error writing file:", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("Exported %d assets, %d prices, %d holdings to %s\n",
		len(assets), len(prices), len(holdings), c.file)
	return subcommands.ExitSuccess
}

// --- import ---

type importCmd struct {
	file    string
	db      string
	replace bool
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import assets, prices, and holdings from a JSON file" }
func (*importCmd) Usage() string {
	return `import -file <path> [-replace] [-database-url <url>]

  Loads a dump produced by export. With -replace, all existing assets are
  deleted first (prices and holdings cascade). Price caches are rebuilt by
  replaying the ledger through the propagation rule, not copied from the dump.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.file, "file", "portfolio_backup.json", "input file path")
	f.StringVar(&c.db, "database-url", "", "pgx connection string (default: DATABASE_URL)")
	f.BoolVar(&c.replace, "replace", false, "delete existing assets before importing")
}

func (c *importCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	data, err := os.ReadFile(c.file)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error reading file:", err)
		return subcommands.ExitFailure
	}
	var d dump
	if err := json.Unmarshal(data, &d); err != nil {
		fmt.Fprintln(os.Stderr, "Error decoding dump:", err)
		return subcommands.ExitFailure
	}

	st, closeFn, err := connect(ctx, c.db)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitFailure
	}
	defer closeFn()

	if c.replace {
		existing, err := st.ListAssets(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error listing existing assets:", err)
			return subcommands.ExitFailure
		}
		for _, a := range existing {
			if err := st.DeleteAsset(ctx, a.ISIN); err != nil {
				fmt.Fprintf(os.Stderr, "Error deleting %s: %v\n", a.ISIN, err)
				return subcommands.ExitFailure
			}
		}
		fmt.Printf("Deleted %d existing assets\n", len(existing))
	}

	for i := range d.Assets {
		a := d.Assets[i]
		// Cache pairs are rebuilt below from the ledger.
		a.CurrentPrice = nil
		a.CurrentPriceAt = nil
		if err := st.CreateAsset(ctx, &a); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating asset %s: %v\n", a.ISIN, err)
			return subcommands.ExitFailure
		}
	}

	// Oldest first so each ApplyPriceCache below sees a complete ledger.
	sort.Slice(d.Prices, func(i, j int) bool {
		return d.Prices[i].Timestamp.Before(d.Prices[j].Timestamp)
	})
	for i := range d.Prices {
		if err := st.InsertPrice(ctx, &d.Prices[i]); err != nil {
			fmt.Fprintf(os.Stderr, "Error inserting price for %s: %v\n", d.Prices[i].ISIN, err)
			return subcommands.ExitFailure
		}
	}

	// Replay the propagation rule once per asset.
	refreshed := 0
	for i := range d.Assets {
		latest, err := st.GetLatestPrice(ctx, d.Assets[i].ISIN)
		if err != nil {
			continue // no ledger entries for this asset
		}
		applied, err := st.ApplyPriceCache(ctx, d.Assets[i].ISIN, latest.Amount, latest.Timestamp)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error refreshing cache for %s: %v\n", d.Assets[i].ISIN, err)
			return subcommands.ExitFailure
		}
		if applied {
			refreshed++
		}
	}

	for i := range d.Holdings {
		if err := st.CreateHolding(ctx, &d.Holdings[i]); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating holding for %s: %v\n", d.Holdings[i].ISIN, err)
			return subcommands.ExitFailure
		}
	}

	fmt.Printf("Imported %d assets, %d prices, %d holdings (%d caches refreshed)\n",
		len(d.Assets), len(d.Prices), len(d.Holdings), refreshed)
	return subcommands.ExitSuccess
}

// --- ping ---

type pingCmd struct {
	db string
}

func (*pingCmd) Name() string     { return "ping" }
func (*pingCmd) Synopsis() string { return "check database connectivity" }
func (*pingCmd) Usage() string {
	return `ping [-database-url <url>]

  Opens a connection and pings the database, then exits.
`
}

func (c *pingCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.db, "database-url", "", "pgx connection string (default: DATABASE_URL)")
}

func (c *pingCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	_, closeFn, err := connect(ctx, c.db)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Connection failed:", err)
		return subcommands.ExitFailure
	}
	defer closeFn()

	fmt.Println("Connection OK")
	return subcommands.ExitSuccess
}
