package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"expense-tracker/internal/config"
	"expense-tracker/internal/ledger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExtractor map[string]ledger.Extraction

func (s stubExtractor) ExtractTransaction(ctx context.Context, message string) (ledger.Extraction, error) {
	if ext, ok := s[message]; ok {
		return ext, nil
	}
	return ledger.Extraction{}, errors.New("unreadable")
}

func execute(stdin io.Reader, extractor ledger.Extractor, args ...string) (string, error) {
	stdout := new(bytes.Buffer)
	root := newRootCommand(stdin, func(context.Context) (ledger.Extractor, error) {
		if extractor == nil {
			return nil, errors.New("no api key")
		}
		return extractor, nil
	})
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(new(bytes.Buffer))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestRun_Success(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test_success.db")

	stdout := new(bytes.Buffer)
	args := []string{"adduser", "--user", "testuser", "--password", "secret", "--db", dbPath}
	err := run(args, new(bytes.Buffer), stdout, new(bytes.Buffer))
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), "User testuser created successfully")
}

func TestRun_DuplicateUser(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test_duplicate.db")
	args := []string{"adduser", "--user", "testuser", "--password", "secret", "--db", dbPath}

	_, err := execute(new(bytes.Buffer), nil, args...)
	require.NoError(t, err, "first run should succeed")

	_, err = execute(new(bytes.Buffer), nil, args...)
	require.Error(t, err, "expected error on duplicate user")
	assert.Contains(t, err.Error(), "already exists")
}

func TestRun_MissingUserFlag(t *testing.T) {
	_, err := execute(new(bytes.Buffer), nil, "adduser", "--password", "secret")
	require.Error(t, err, "expected error for missing user flag")
	assert.Contains(t, err.Error(), `"user" not set`)
}

func TestRun_PasswordPrompt(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test_prompt.db")

	out, err := execute(strings.NewReader("promptedpass\n"), nil, "adduser", "--user", "promptuser", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Password: ")
	assert.Contains(t, out, "User promptuser created successfully")
}

func TestRun_EmptyPassword(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test_empty.db")

	_, err := execute(strings.NewReader("   \n"), nil, "adduser", "--user", "emptyuser", "--db", dbPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password cannot be empty")
}

func TestRun_BadCurrency(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test_currency.db")

	_, err := execute(new(bytes.Buffer), nil, "adduser", "--user", "u1", "--password", "secret", "--currency", "xyz", "--db", dbPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported currency")
}

func TestLedgerCommands(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test_ledger.db")
	extractor := stubExtractor{
		"Rs 50000 salary credited": {Type: "credit", Amount: decimal.NewFromInt(50000), Merchant: "Employer", Category: "Other"},
		"Rs 2500 spent on Amazon":  {Type: "debit", Amount: decimal.NewFromInt(2500), Merchant: "Amazon", Category: "Shopping"},
	}

	_, err := execute(new(bytes.Buffer), nil, "adduser", "--user", "alice", "--password", "secret", "--db", dbPath)
	require.NoError(t, err)

	out, err := execute(nil, extractor, "ingest", "Rs 50000 salary credited", "--user", "alice", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Credit ₹50,000.00 at Employer")

	out, err = execute(nil, extractor, "ingest", "Rs 2500 spent on Amazon", "--user", "alice", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Balance:  ₹47,500.00")

	_, err = execute(nil, extractor, "ingest", "Rs 2500 spent on Amazon", "--user", "alice", "--db", dbPath)
	require.ErrorIs(t, err, ledger.ErrDuplicateMessage)

	_, err = execute(nil, extractor, "ingest", "something nobody understands", "--user", "alice", "--db", dbPath)
	require.ErrorIs(t, err, ledger.ErrExtractionFailed)

	out, err = execute(nil, nil, "balance", "--user", "alice", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Credits:  ₹50,000.00")
	assert.Contains(t, out, "Debits:   ₹2,500.00")

	out, err = execute(nil, nil, "record", "--user", "alice", "--type", "debit", "--amount", "500",
		"--merchant", "Cash", "--category", "food", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Recorded #3: Debit ₹500.00 at Cash (Food)")
	assert.Contains(t, out, "Balance:  ₹47,000.00")

	_, err = execute(nil, nil, "record", "--user", "alice", "--type", "debit", "--amount", "ten", "--db", dbPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid amount")

	out, err = execute(nil, nil, "verify", "--user", "alice", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Applied transactions: 3")
	assert.Contains(t, out, "OK")
}

func TestIngestWithoutModel(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test_nomodel.db")

	_, err := execute(nil, nil, "ingest", "Rs 100 debited", "--user", "alice", "--db", dbPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "language model unavailable")
}

func TestUnknownUser(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test_unknown.db")

	_, err := execute(nil, nil, "balance", "--user", "ghost", "--db", dbPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user ghost not found")
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := execute(nil, nil, "config", "init", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Server.Port, cfg.Server.Port)
	assert.Equal(t, config.Default().LLM.Timeout, cfg.LLM.Timeout)

	_, err = execute(nil, nil, "config", "init", "--path", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(nil, nil, "config", "init", "--path", path, "--force")
	require.NoError(t, err)
}
