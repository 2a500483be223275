package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"expense-tracker/internal/auth"
	"expense-tracker/internal/config"
	"expense-tracker/internal/currency"
	"expense-tracker/internal/ledger"
	"expense-tracker/internal/models"
	"expense-tracker/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newAddUserCommand(dbPath *string, stdin io.Reader) *cobra.Command {
	var username, password, code string

	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if password == "" {
				fmt.Fprint(out, "Password: ")
				var err error
				password, err = readPassword(stdin)
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				fmt.Fprintln(out)
			}
			if strings.TrimSpace(password) == "" {
				return errors.New("password cannot be empty")
			}
			code = strings.ToUpper(code)
			if !currency.Valid(code) {
				return fmt.Errorf("unsupported currency %q", code)
			}

			db, err := storage.NewDB(*dbPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			hash, err := auth.HashPassword(password)
			if err != nil {
				return fmt.Errorf("failed to hash password: %w", err)
			}
			user := &models.User{Username: username, PasswordHash: hash, PreferredCurrency: code}
			if err := db.CreateUser(cmd.Context(), user); err != nil {
				if errors.Is(err, storage.ErrDuplicate) {
					return fmt.Errorf("user %s already exists", username)
				}
				return fmt.Errorf("failed to create user: %w", err)
			}

			fmt.Fprintf(out, "User %s created successfully with ID %d\n", user.Username, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "user", "", "username (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	cmd.Flags().StringVar(&code, "currency", currency.DefaultCode, "preferred currency code")
	return cmd
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// Pipes and tests.
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// openUser opens the database and resolves username.
func openUser(ctx context.Context, dbPath, username string) (*storage.DB, *models.User, error) {
	db, err := storage.NewDB(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	user, err := db.GetUserByUsername(ctx, username)
	if err != nil {
		db.Close()
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("user %s not found", username)
		}
		return nil, nil, err
	}
	return db, user, nil
}

func printBalance(w io.Writer, code string, b models.Balance) {
	fmt.Fprintf(w, "Balance:  %s\n", currency.Format(b.CurrentBalance, code))
	fmt.Fprintf(w, "Credits:  %s\n", currency.Format(b.TotalCredits, code))
	fmt.Fprintf(w, "Debits:   %s\n", currency.Format(b.TotalDebits, code))
}

func newBalanceCommand(dbPath *string) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show a user's running balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, user, err := openUser(cmd.Context(), *dbPath, username)
			if err != nil {
				return err
			}
			defer db.Close()

			bal, err := ledger.NewEngine(db, nil).Balance(cmd.Context(), user.ID)
			if err != nil {
				return err
			}
			printBalance(cmd.OutOrStdout(), user.PreferredCurrency, bal)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "username (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newVerifyCommand(dbPath *string) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Recompute a user's balance from the ledger and compare",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, user, err := openUser(cmd.Context(), *dbPath, username)
			if err != nil {
				return err
			}
			defer db.Close()

			audit, err := ledger.NewEngine(db, nil).Verify(cmd.Context(), user.ID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			code := user.PreferredCurrency
			fmt.Fprintf(out, "Applied transactions: %d\n", audit.Applied)
			fmt.Fprintf(out, "Stored balance:   %s\n", currency.Format(audit.Stored.CurrentBalance, code))
			fmt.Fprintf(out, "Expected balance: %s\n", currency.Format(audit.Expected, code))
			if !audit.Consistent {
				return errors.New("stored balance does not match the ledger")
			}
			fmt.Fprintln(out, "OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "username (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newIngestCommand(dbPath *string, newExtractor extractorFactory) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "ingest <message>",
		Short: "Extract a transaction from a bank alert and apply it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			extractor, err := newExtractor(cmd.Context())
			if err != nil {
				return fmt.Errorf("language model unavailable: %w", err)
			}
			db, user, err := openUser(cmd.Context(), *dbPath, username)
			if err != nil {
				return err
			}
			defer db.Close()

			txn, bal, err := ledger.NewEngine(db, extractor).Submit(cmd.Context(), user.ID, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Applied #%d: %s %s at %s (%s)\n",
				txn.ID, txn.Type, currency.Format(txn.Amount, user.PreferredCurrency), txn.Merchant, txn.Category)
			printBalance(out, user.PreferredCurrency, bal)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "username (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newRecordCommand(dbPath *string) *cobra.Command {
	var username, typ, amount, merchant, category string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Apply a manual ledger entry, such as a cash payment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid amount %q", amount)
			}
			db, user, err := openUser(cmd.Context(), *dbPath, username)
			if err != nil {
				return err
			}
			defer db.Close()

			txn, bal, err := ledger.NewEngine(db, nil).Record(cmd.Context(), user.ID, ledger.Extraction{
				Type:     typ,
				Amount:   amt,
				Merchant: merchant,
				Category: category,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Recorded #%d: %s %s at %s (%s)\n",
				txn.ID, txn.Type, currency.Format(txn.Amount, user.PreferredCurrency), txn.Merchant, txn.Category)
			printBalance(out, user.PreferredCurrency, bal)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "username (required)")
	cmd.Flags().StringVar(&typ, "type", "", "credit or debit (required)")
	cmd.Flags().StringVar(&amount, "amount", "", "positive amount (required)")
	cmd.Flags().StringVar(&merchant, "merchant", "", "merchant or source")
	cmd.Flags().StringVar(&category, "category", string(models.CategoryOther), "expense category")
	for _, name := range []string{"user", "type", "amount"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the server configuration file",
	}

	var path string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists, use --force to overwrite", path)
				}
			}
			if err := config.Save(path, config.Default()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	defaultPath := "config.yaml"
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		defaultPath = p
	}
	initCmd.Flags().StringVar(&path, "path", defaultPath, "where to write the file")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	cmd.AddCommand(initCmd)
	return cmd
}
