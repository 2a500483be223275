package storage

import (
	"context"
	"errors"
	"testing"

	"expense-tracker/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type LedgerTestSuite struct {
	suite.Suite
	db   *DB
	ctx  context.Context
	user *models.User
}

func (suite *LedgerTestSuite) SetupTest() {
	db, err := NewDB(":memory:")
	require.NoError(suite.T(), err)
	suite.db = db
	suite.ctx = context.Background()
	suite.user = createUser(suite.T(), db, "ledger")
}

func (suite *LedgerTestSuite) TearDownTest() {
	suite.db.Close()
}

func (suite *LedgerTestSuite) newTxn(fp string, typ models.TransactionType, amount int64) *models.Transaction {
	return &models.Transaction{
		UserID:      suite.user.ID,
		MessageText: "message " + fp,
		Fingerprint: fp,
		Type:        typ,
		Amount:      decimal.NewFromInt(amount),
		Merchant:    "Shop",
		Category:    models.CategoryShopping,
		Provenance:  models.ProvenanceAuto,
	}
}

func (suite *LedgerTestSuite) TestGetBalanceWithoutRow() {
	b, err := suite.db.GetBalance(suite.ctx, suite.user.ID)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), b.CurrentBalance.IsZero())
	assert.Equal(suite.T(), suite.user.ID, b.UserID)
}

func (suite *LedgerTestSuite) TestInsertAndSwap() {
	txn := suite.newTxn("fp1", models.Credit, 500)
	err := suite.db.InLedgerTx(suite.ctx, func(tx *LedgerTx) error {
		if err := tx.InsertTransaction(suite.ctx, txn); err != nil {
			return err
		}
		b, err := tx.Balance(suite.ctx, suite.user.ID)
		if err != nil {
			return err
		}
		_, err = tx.CompareAndSwapBalance(suite.ctx, b.Applied(txn.Type, txn.Amount))
		return err
	})
	require.NoError(suite.T(), err)
	assert.NotZero(suite.T(), txn.ID)
	assert.Equal(suite.T(), models.StatusApplied, txn.Status)

	b, err := suite.db.GetBalance(suite.ctx, suite.user.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "500", b.CurrentBalance.String())
	assert.Equal(suite.T(), "500", b.TotalCredits.String())
	assert.EqualValues(suite.T(), 1, b.Version)

	exists, err := suite.db.HasFingerprint(suite.ctx, suite.user.ID, "fp1")
	require.NoError(suite.T(), err)
	assert.True(suite.T(), exists)
}

func (suite *LedgerTestSuite) TestStaleVersionConflicts() {
	err := suite.db.InLedgerTx(suite.ctx, func(tx *LedgerTx) error {
		b, err := tx.Balance(suite.ctx, suite.user.ID)
		if err != nil {
			return err
		}
		if _, err := tx.CompareAndSwapBalance(suite.ctx, b.Applied(models.Credit, decimal.NewFromInt(1))); err != nil {
			return err
		}
		// b still carries the version read before the first swap.
		_, err = tx.CompareAndSwapBalance(suite.ctx, b.Applied(models.Credit, decimal.NewFromInt(1)))
		return err
	})
	assert.ErrorIs(suite.T(), err, ErrConflict)

	b, err := suite.db.GetBalance(suite.ctx, suite.user.ID)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), b.CurrentBalance.IsZero(), "rolled back transaction must not leave a partial write")
}

func (suite *LedgerTestSuite) TestDuplicateFingerprint() {
	require.NoError(suite.T(), suite.db.InLedgerTx(suite.ctx, func(tx *LedgerTx) error {
		return tx.InsertTransaction(suite.ctx, suite.newTxn("same", models.Debit, 10))
	}))

	err := suite.db.InLedgerTx(suite.ctx, func(tx *LedgerTx) error {
		return tx.InsertTransaction(suite.ctx, suite.newTxn("same", models.Debit, 10))
	})
	assert.ErrorIs(suite.T(), err, ErrDuplicate)

	other := createUser(suite.T(), suite.db, "other")
	err = suite.db.InLedgerTx(suite.ctx, func(tx *LedgerTx) error {
		txn := suite.newTxn("same", models.Debit, 10)
		txn.UserID = other.ID
		return tx.InsertTransaction(suite.ctx, txn)
	})
	assert.NoError(suite.T(), err, "fingerprints are scoped per user")
}

func (suite *LedgerTestSuite) TestMarkDeletedOnce() {
	txn := suite.newTxn("del", models.Debit, 10)
	require.NoError(suite.T(), suite.db.InLedgerTx(suite.ctx, func(tx *LedgerTx) error {
		return tx.InsertTransaction(suite.ctx, txn)
	}))

	require.NoError(suite.T(), suite.db.InLedgerTx(suite.ctx, func(tx *LedgerTx) error {
		return tx.MarkDeleted(suite.ctx, txn)
	}))
	assert.Equal(suite.T(), models.StatusDeleted, txn.Status)
	assert.NotNil(suite.T(), txn.DeletedAt)

	err := suite.db.InLedgerTx(suite.ctx, func(tx *LedgerTx) error {
		return tx.MarkDeleted(suite.ctx, txn)
	})
	assert.ErrorIs(suite.T(), err, ErrConflict)

	err = suite.db.InLedgerTx(suite.ctx, func(tx *LedgerTx) error {
		txn.Amount = decimal.NewFromInt(99)
		return tx.UpdateApplied(suite.ctx, txn)
	})
	assert.ErrorIs(suite.T(), err, ErrConflict)

	stored, err := suite.db.GetTransaction(suite.ctx, suite.user.ID, txn.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.StatusDeleted, stored.Status)
	assert.Equal(suite.T(), "10", stored.Amount.String())

	exists, err := suite.db.HasFingerprint(suite.ctx, suite.user.ID, "del")
	require.NoError(suite.T(), err)
	assert.True(suite.T(), exists, "deleted rows keep blocking their fingerprint")
}

func (suite *LedgerTestSuite) TestListTransactionsSkipsDeleted() {
	keep := suite.newTxn("a", models.Credit, 1)
	drop := suite.newTxn("b", models.Debit, 2)
	require.NoError(suite.T(), suite.db.InLedgerTx(suite.ctx, func(tx *LedgerTx) error {
		return errors.Join(tx.InsertTransaction(suite.ctx, keep), tx.InsertTransaction(suite.ctx, drop))
	}))
	require.NoError(suite.T(), suite.db.InLedgerTx(suite.ctx, func(tx *LedgerTx) error {
		return tx.MarkDeleted(suite.ctx, drop)
	}))

	list, total, err := suite.db.ListTransactions(suite.ctx, suite.user.ID, ListFilter{})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, total)
	require.Len(suite.T(), list, 1)
	assert.Equal(suite.T(), keep.ID, list[0].ID)

	n, err := suite.db.CountTransactions(suite.ctx, suite.user.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 2, n)
}

func (suite *LedgerTestSuite) TestGetTransactionOtherUser() {
	txn := suite.newTxn("mine", models.Credit, 1)
	require.NoError(suite.T(), suite.db.InLedgerTx(suite.ctx, func(tx *LedgerTx) error {
		return tx.InsertTransaction(suite.ctx, txn)
	}))

	_, err := suite.db.GetTransaction(suite.ctx, txn.UserID+100, txn.ID)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerTestSuite))
}
