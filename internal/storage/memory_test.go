package storage

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paisatrack/paisatrack-backend/internal/models"
)

func seedUser(t *testing.T, store *MemoryStore, name, email string) *models.User {
	t.Helper()
	user, err := store.CreateUser(&models.User{Name: name, Email: email})
	require.NoError(t, err)
	return user
}

func seedTxn(t *testing.T, store *MemoryStore, userID, txnType, category string, amount float64, date time.Time) *models.Transaction {
	t.Helper()
	txn, err := store.CreateTransaction(&models.Transaction{
		UserID:   userID,
		Type:     txnType,
		Category: category,
		Amount:   decimal.NewFromFloat(amount),
		Date:     date,
	})
	require.NoError(t, err)
	return txn
}

func TestCreateUserAndLookup(t *testing.T) {
	store := NewMemoryStore()

	user := seedUser(t, store, "Asha", "Asha@Example.com ")
	assert.NotEmpty(t, user.UserID)
	assert.True(t, user.IsActive)

	// Email is normalized on create and on lookup
	byEmail, err := store.GetUserByEmail("  ASHA@example.COM")
	require.NoError(t, err)
	assert.Equal(t, user.UserID, byEmail.UserID)

	_, err = store.CreateUser(&models.User{Name: "Dup", Email: "asha@example.com"})
	assert.Error(t, err, "duplicate email must be rejected")

	_, err = store.GetUserByEmail("nobody@example.com")
	assert.Error(t, err)
}

func TestLinkPhoneToUser(t *testing.T) {
	store := NewMemoryStore()
	user := seedUser(t, store, "Asha", "asha@example.com")

	_, err := store.GetUserByPhone("+919876543210")
	require.Error(t, err)

	require.NoError(t, store.LinkPhoneToUser(user.UserID, "+919876543210"))

	byPhone, err := store.GetUserByPhone("+919876543210")
	require.NoError(t, err)
	assert.Equal(t, user.UserID, byPhone.UserID)
	assert.NotNil(t, byPhone.LinkedAt)

	assert.Error(t, store.LinkPhoneToUser("USR99999", "+910000000000"))
}

func TestGetLinkedUsersSkipsUnlinked(t *testing.T) {
	store := NewMemoryStore()
	linked := seedUser(t, store, "Asha", "asha@example.com")
	seedUser(t, store, "Ravi", "ravi@example.com")
	require.NoError(t, store.LinkPhoneToUser(linked.UserID, "+919876543210"))

	users, err := store.GetLinkedUsers()
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, linked.UserID, users[0].UserID)
}

func TestCreateTransactionRequiresUser(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.CreateTransaction(&models.Transaction{
		Type:   models.TypeExpense,
		Amount: decimal.NewFromInt(50),
	})
	assert.Error(t, err)
}

func TestCreateTransactionDefaults(t *testing.T) {
	store := NewMemoryStore()
	user := seedUser(t, store, "Asha", "asha@example.com")

	created, err := store.CreateTransaction(&models.Transaction{
		UserID:   user.UserID,
		Type:     models.TypeExpense,
		Category: "Food",
		Amount:   decimal.NewFromFloat(49.999),
		Date:     time.Now(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.TransactionID)
	assert.Equal(t, "manual", created.Source)
	assert.True(t, created.Amount.Equal(decimal.NewFromFloat(50.00)), "amounts are rounded to two places")

	fetched, err := store.GetTransactionByID(created.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, created.TransactionID, fetched.TransactionID)
}

func TestGetRecentTransactionsNewestFirstAndScoped(t *testing.T) {
	store := NewMemoryStore()
	asha := seedUser(t, store, "Asha", "asha@example.com")
	ravi := seedUser(t, store, "Ravi", "ravi@example.com")

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	first := seedTxn(t, store, asha.UserID, models.TypeExpense, "Food", 10, day)
	seedTxn(t, store, ravi.UserID, models.TypeExpense, "Food", 999, day)
	second := seedTxn(t, store, asha.UserID, models.TypeExpense, "Transport", 20, day)
	third := seedTxn(t, store, asha.UserID, models.TypeIncome, "Salary", 30, day)

	recent, err := store.GetRecentTransactions(asha.UserID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, third.TransactionID, recent[0].TransactionID)
	assert.Equal(t, second.TransactionID, recent[1].TransactionID)

	all, err := store.GetRecentTransactions(asha.UserID, 10)
	require.NoError(t, err)
	require.Len(t, all, 3, "other users' transactions never leak in")
	assert.Equal(t, first.TransactionID, all[2].TransactionID)
}

func TestSpendingSummaryTotalsAndOrdering(t *testing.T) {
	store := NewMemoryStore()
	user := seedUser(t, store, "Asha", "asha@example.com")

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)

	seedTxn(t, store, user.UserID, models.TypeExpense, "Food", 100, from.AddDate(0, 0, 2))
	seedTxn(t, store, user.UserID, models.TypeExpense, "Food", 150, from.AddDate(0, 0, 5))
	seedTxn(t, store, user.UserID, models.TypeExpense, "Transport", 400, from.AddDate(0, 0, 8))
	seedTxn(t, store, user.UserID, models.TypeIncome, "Salary", 5000, from.AddDate(0, 0, 1))
	// Outside the window
	seedTxn(t, store, user.UserID, models.TypeExpense, "Food", 999, from.AddDate(0, -1, 0))

	summary, err := store.GetSpendingSummary(user.UserID, from, to)
	require.NoError(t, err)

	assert.True(t, summary.TotalExpense.Equal(decimal.NewFromInt(650)))
	assert.True(t, summary.TotalIncome.Equal(decimal.NewFromInt(5000)))

	require.Len(t, summary.ByCategory, 2)
	assert.Equal(t, "Transport", summary.ByCategory[0].Category, "categories are ordered by spend, largest first")
	assert.True(t, summary.ByCategory[0].Total.Equal(decimal.NewFromInt(400)))
	assert.Equal(t, "Food", summary.ByCategory[1].Category)
	assert.True(t, summary.ByCategory[1].Total.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, 2, summary.ByCategory[1].Count)
}
