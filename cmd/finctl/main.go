// Command finctl administers the ledger database from a shell: it creates
// accounts, inspects balances and feeds bank alerts without the HTTP server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"expense-tracker/internal/config"
	"expense-tracker/internal/ledger"
	"expense-tracker/internal/llm"

	"github.com/spf13/cobra"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// extractorFactory builds the extractor used by the ingest command.
type extractorFactory func(ctx context.Context) (ledger.Extractor, error)

func configuredExtractor(ctx context.Context) (ledger.Extractor, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return nil, err
	}
	svc, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	root := newRootCommand(stdin, configuredExtractor)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(context.Background())
}

func newRootCommand(stdin io.Reader, extractor extractorFactory) *cobra.Command {
	var dbPath string

	root := &cobra.Command{
		Use:   "finctl",
		Short: "Manage expense tracker accounts and ledgers",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultDB := "expenses.db"
	if path := os.Getenv("DB_PATH"); path != "" {
		defaultDB = path
	}
	root.PersistentFlags().StringVar(&dbPath, "db", defaultDB, "path to database file")

	root.AddCommand(
		newAddUserCommand(&dbPath, stdin),
		newBalanceCommand(&dbPath),
		newVerifyCommand(&dbPath),
		newIngestCommand(&dbPath, extractor),
		newRecordCommand(&dbPath),
		newConfigCommand(),
	)
	return root
}
