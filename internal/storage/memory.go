package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paisatrack/paisatrack-backend/internal/models"
)

// MemoryStore holds all data in memory for MVP and tests
type MemoryStore struct {
	users        map[string]*models.User
	transactions map[string]*models.Transaction

	// Mutexes for thread safety
	userMu sync.RWMutex
	txnMu  sync.RWMutex

	// Ordered transaction IDs, append order
	txnOrder []string

	userCounter int
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[string]*models.User),
		transactions: make(map[string]*models.Transaction),
	}
}

// User operations

func (m *MemoryStore) CreateUser(user *models.User) (*models.User, error) {
	m.userMu.Lock()
	defer m.userMu.Unlock()

	email := strings.ToLower(strings.TrimSpace(user.Email))
	for _, u := range m.users {
		if u.Email == email {
			return nil, fmt.Errorf("email already registered")
		}
	}

	m.userCounter++
	stored := *user
	stored.UserID = fmt.Sprintf("USR%05d", m.userCounter)
	stored.Email = email
	stored.IsActive = true
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = time.Now()

	m.users[stored.UserID] = &stored
	return &stored, nil
}

func (m *MemoryStore) GetUserByID(userID string) (*models.User, error) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	user, exists := m.users[userID]
	if !exists {
		return nil, fmt.Errorf("user not found")
	}
	return user, nil
}

func (m *MemoryStore) GetUserByPhone(phone string) (*models.User, error) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	for _, user := range m.users {
		if user.Phone == phone && user.Phone != "" {
			return user, nil
		}
	}
	return nil, fmt.Errorf("user not found")
}

func (m *MemoryStore) GetUserByEmail(email string) (*models.User, error) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, fmt.Errorf("user not found")
}

func (m *MemoryStore) LinkPhoneToUser(userID, phone string) error {
	m.userMu.Lock()
	defer m.userMu.Unlock()

	user, exists := m.users[userID]
	if !exists {
		return fmt.Errorf("user not found")
	}

	now := time.Now()
	user.Phone = phone
	user.LinkedAt = &now
	user.UpdatedAt = now
	return nil
}

func (m *MemoryStore) GetLinkedUsers() ([]*models.User, error) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	var users []*models.User
	for _, user := range m.users {
		if user.Phone != "" && user.IsActive {
			users = append(users, user)
		}
	}
	return users, nil
}

func (m *MemoryStore) TouchUser(userID string) error {
	m.userMu.Lock()
	defer m.userMu.Unlock()

	user, exists := m.users[userID]
	if !exists {
		return fmt.Errorf("user not found")
	}

	now := time.Now()
	user.LastSeenAt = &now
	return nil
}

// Transaction operations

func (m *MemoryStore) CreateTransaction(txn *models.Transaction) (*models.Transaction, error) {
	if txn.UserID == "" {
		return nil, fmt.Errorf("transaction requires a user")
	}

	m.txnMu.Lock()
	defer m.txnMu.Unlock()

	stored := *txn
	if stored.TransactionID == "" {
		stored.TransactionID = fmt.Sprintf("TXN-%s", uuid.NewString())
	}
	if stored.Source == "" {
		stored.Source = "manual"
	}
	stored.Amount = txn.Amount.Round(2)
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = time.Now()

	m.transactions[stored.TransactionID] = &stored
	m.txnOrder = append(m.txnOrder, stored.TransactionID)
	return &stored, nil
}

func (m *MemoryStore) GetTransactionByID(transactionID string) (*models.Transaction, error) {
	m.txnMu.RLock()
	defer m.txnMu.RUnlock()

	txn, exists := m.transactions[transactionID]
	if !exists {
		return nil, fmt.Errorf("transaction not found")
	}
	return txn, nil
}

func (m *MemoryStore) GetRecentTransactions(userID string, limit int) ([]*models.Transaction, error) {
	m.txnMu.RLock()
	defer m.txnMu.RUnlock()

	var results []*models.Transaction
	// Walk newest first
	for i := len(m.txnOrder) - 1; i >= 0 && len(results) < limit; i-- {
		txn := m.transactions[m.txnOrder[i]]
		if txn.UserID == userID {
			results = append(results, txn)
		}
	}
	return results, nil
}

func (m *MemoryStore) GetSpendingSummary(userID string, from, to time.Time) (*models.SpendingSummary, error) {
	m.txnMu.RLock()
	defer m.txnMu.RUnlock()

	summary := &models.SpendingSummary{
		UserID:       userID,
		From:         from,
		To:           to,
		TotalExpense: decimal.Zero,
		TotalIncome:  decimal.Zero,
	}

	byCategory := make(map[string]*models.CategoryTotal)

	for _, id := range m.txnOrder {
		txn := m.transactions[id]
		if txn.UserID != userID {
			continue
		}
		if txn.Date.Before(from) || txn.Date.After(to) {
			continue
		}

		if txn.Type == models.TypeIncome {
			summary.TotalIncome = summary.TotalIncome.Add(txn.Amount)
			continue
		}

		summary.TotalExpense = summary.TotalExpense.Add(txn.Amount)
		ct, ok := byCategory[txn.Category]
		if !ok {
			ct = &models.CategoryTotal{Category: txn.Category, Total: decimal.Zero}
			byCategory[txn.Category] = ct
		}
		ct.Count++
		ct.Total = ct.Total.Add(txn.Amount)
	}

	for _, ct := range byCategory {
		summary.ByCategory = append(summary.ByCategory, *ct)
	}
	sort.Slice(summary.ByCategory, func(i, j int) bool {
		return summary.ByCategory[i].Total.GreaterThan(summary.ByCategory[j].Total)
	})

	return summary, nil
}
