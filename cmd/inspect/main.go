// Command inspect prints the records of a message store as a table.
// It opens the database read only, so it can run next to a live server.
package main

import (
	"dm-lab/infrastructure/storage"
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/pflag"
)

func main() {
	dbPath := pflag.StringP("db", "d", "./data/badger", "Path to badger DB")
	prefix := pflag.StringP("prefix", "p", "msg:", "Key prefix to scan (msg:, head:, partner:, user:)")
	limit := pflag.IntP("limit", "n", 0, "Maximum number of records, 0 for all")
	pflag.Parse()

	if err := run(*dbPath, *prefix, *limit); err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		os.Exit(1)
	}
}

func run(dbPath, prefix string, limit int) error {
	db, err := openDB(dbPath)
	if err != nil {
		return fmt.Errorf("opening badger: %w", err)
	}
	defer db.Close()

	records, err := storage.Scan(db, prefix, limit)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Kind", "At", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, record := range records {
		table.Append([]string{record.Key, record.Kind, record.At, record.Detail})
	}
	table.Render()
	fmt.Printf("\n%d record(s)\n", len(records))
	return nil
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil && strings.Contains(err.Error(), "Log truncate required") {
		// A crashed writer left a partial value log: let a writable open
		// truncate it, then reopen read only.
		repaired, repairErr := badger.Open(badger.DefaultOptions(path).WithLogger(nil).WithBypassLockGuard(true))
		if repairErr != nil {
			return nil, fmt.Errorf("repair failed: %w", repairErr)
		}
		_ = repaired.Close()
		return badger.Open(opts)
	}
	return db, err
}
