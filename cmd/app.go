// Package cmd implements the CLI application to manage a position ledger.
package cmd

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
	"github.com/rs/zerolog"

	"github.com/mwestra/folio"
	"github.com/mwestra/folio/eodhd"
	"github.com/mwestra/folio/sqlstore"
)

// Register registers all subcommands on the commander.
func Register(c *subcommands.Commander) {
	c.Register(&depositCmd{}, "transactions")
	c.Register(&withdrawCmd{}, "transactions")
	c.Register(&buyCmd{}, "transactions")
	c.Register(&sellCmd{}, "transactions")
	c.Register(&dividendCmd{}, "transactions")
	c.Register(&txCmd{}, "transactions")

	c.Register(&positionCmd{}, "reports")
	c.Register(&totalsCmd{}, "reports")
	c.Register(&backtestCmd{}, "reports")

	c.Register(&updateCmd{}, "market data")
	c.Register(&fxCmd{}, "market data")
}

// As a CLI application with a short lived lifecycle, global flags are fine.

var (
	dbFile    = flag.String("db", "folio.db", "Path to the SQLite database file")
	baseFlag  = flag.String("base", "EUR", "Base currency of the portfolio")
	logLevel  = flag.String("log-level", "warn", "Log level (debug, info, warn, error)")
	eodhdFlag = flag.String("eodhd-api-key", "", "EODHD API key for fetching prices from eodhd.com.\n If missing the environment variable "+eodhd.APIKeyEnv+" is read. You can get one at https://eodhd.com/")
)

func apiKey() string {
	if *eodhdFlag == "" {
		*eodhdFlag = eodhd.APIKeyFromEnv()
	}
	return *eodhdFlag
}

// newLogger builds the console logger all commands share.
func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

// openStore opens the database and returns a store over it. The caller
// closes the returned DB.
func openStore(log zerolog.Logger) (*sqlstore.DB, *sqlstore.Store, error) {
	db, err := sqlstore.Open(*dbFile, sqlstore.ProfileStandard, log)
	if err != nil {
		return nil, nil, fmt.Errorf("open database %q: %w", *dbFile, err)
	}
	return db, sqlstore.New(db, log), nil
}

func baseCurrency() (folio.Currency, error) {
	return folio.ParseCurrency(*baseFlag)
}

// printMarkdown renders markdown to the terminal.
func printMarkdown(md string) {
	out, err := glamour.Render(md, "auto")
	if err != nil {
		// Fall back to the raw markdown.
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, "Error:", err)
	return subcommands.ExitFailure
}
