package storage

import (
	"sync"
	"time"

	"github.com/paisatrack/paisatrack-backend/internal/models"
)

var (
	storeInstance Store
	storeOnce     sync.Once
)

// SetStore sets the global store instance (call from main.go)
func SetStore(s Store) {
	storeInstance = s
}

// GetStore returns the global store instance
func GetStore() Store {
	return storeInstance
}

// Store defines the interface for storage operations
type Store interface {
	// User operations
	CreateUser(user *models.User) (*models.User, error)
	GetUserByID(userID string) (*models.User, error)
	GetUserByPhone(phone string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	LinkPhoneToUser(userID, phone string) error
	TouchUser(userID string) error
	GetLinkedUsers() ([]*models.User, error)

	// Transaction operations (append-only create, read-recent, aggregate)
	CreateTransaction(txn *models.Transaction) (*models.Transaction, error)
	GetTransactionByID(transactionID string) (*models.Transaction, error)
	GetRecentTransactions(userID string, limit int) ([]*models.Transaction, error)
	GetSpendingSummary(userID string, from, to time.Time) (*models.SpendingSummary, error)
}
