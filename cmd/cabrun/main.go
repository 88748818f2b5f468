// Command cabrun runs recipe files from the command line: execute a
// pipeline, resume it after a failure, re-run an old persisted record,
// and inspect run history.
package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/mgeddes/cabrun/internal/persistence"
	"github.com/mgeddes/cabrun/pkg/api"
)

var (
	workDir   string
	historyDB string
)

func main() {
	root := &cobra.Command{
		Use:           "cabrun",
		Short:         "Sequential, resumable pipeline runner for containerized cabs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&workDir, "workdir", ".", "directory for resume files, logs and generated parameter files")
	root.PersistentFlags().StringVar(&historyDB, "history-db", "", "SQLite file recording run history (disabled when empty)")

	root.AddCommand(runCmd())
	root.AddCommand(redoCmd())
	root.AddCommand(showCmd())
	root.AddCommand(historyCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cabrun:", err)
		os.Exit(1)
	}
}

// historyObserver opens the history database when one is configured and
// returns an observer writing to it, plus a close func.
func historyObserver() (api.Observer, func(), error) {
	if historyDB == "" {
		return nil, func() {}, nil
	}
	db, err := sql.Open("sqlite", historyDB)
	if err != nil {
		return nil, nil, err
	}
	store, err := persistence.NewHistoryStore(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return persistence.NewHistoryObserver(store, nil), func() { db.Close() }, nil
}
