package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/paisatrack/paisatrack-backend/internal/models"
)

// DatabaseStore persists data in PostgreSQL via GORM
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a new database-backed storage
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// User operations

func (d *DatabaseStore) CreateUser(user *models.User) (*models.User, error) {
	if err := d.db.Create(user).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unique") {
			return nil, fmt.Errorf("email already registered")
		}
		return nil, err
	}
	return user, nil
}

func (d *DatabaseStore) GetUserByID(userID string) (*models.User, error) {
	var user models.User
	if err := d.db.Where("user_id = ?", userID).First(&user).Error; err != nil {
		return nil, fmt.Errorf("user not found")
	}
	return &user, nil
}

func (d *DatabaseStore) GetUserByPhone(phone string) (*models.User, error) {
	var user models.User
	if err := d.db.Where("phone = ? AND phone <> ''", phone).First(&user).Error; err != nil {
		return nil, fmt.Errorf("user not found")
	}
	return &user, nil
}

func (d *DatabaseStore) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	email = strings.ToLower(strings.TrimSpace(email))
	if err := d.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, fmt.Errorf("user not found")
	}
	return &user, nil
}

func (d *DatabaseStore) LinkPhoneToUser(userID, phone string) error {
	now := time.Now()
	result := d.db.Model(&models.User{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{"phone": phone, "linked_at": &now})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("user not found")
	}
	return nil
}

func (d *DatabaseStore) GetLinkedUsers() ([]*models.User, error) {
	var users []*models.User
	err := d.db.Where("phone <> '' AND is_active = ?", true).Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (d *DatabaseStore) TouchUser(userID string) error {
	now := time.Now()
	return d.db.Model(&models.User{}).
		Where("user_id = ?", userID).
		Update("last_seen_at", &now).Error
}

// Transaction operations

func (d *DatabaseStore) CreateTransaction(txn *models.Transaction) (*models.Transaction, error) {
	if txn.UserID == "" {
		return nil, fmt.Errorf("transaction requires a user")
	}
	txn.Amount = txn.Amount.Round(2)
	if err := d.db.Create(txn).Error; err != nil {
		return nil, err
	}
	return txn, nil
}

func (d *DatabaseStore) GetTransactionByID(transactionID string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := d.db.Where("transaction_id = ?", transactionID).First(&txn).Error; err != nil {
		return nil, fmt.Errorf("transaction not found")
	}
	return &txn, nil
}

func (d *DatabaseStore) GetRecentTransactions(userID string, limit int) ([]*models.Transaction, error) {
	var txns []*models.Transaction
	err := d.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (d *DatabaseStore) GetSpendingSummary(userID string, from, to time.Time) (*models.SpendingSummary, error) {
	summary := &models.SpendingSummary{
		UserID:       userID,
		From:         from,
		To:           to,
		TotalExpense: decimal.Zero,
		TotalIncome:  decimal.Zero,
	}

	type totalRow struct {
		Type  string
		Total decimal.Decimal
	}
	var totals []totalRow
	err := d.db.Model(&models.Transaction{}).
		Select("type, COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ? AND date BETWEEN ? AND ?", userID, from, to).
		Group("type").
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	for _, row := range totals {
		switch row.Type {
		case models.TypeExpense:
			summary.TotalExpense = row.Total
		case models.TypeIncome:
			summary.TotalIncome = row.Total
		}
	}

	var categories []models.CategoryTotal
	err = d.db.Model(&models.Transaction{}).
		Select("category, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ? AND type = ? AND date BETWEEN ? AND ?", userID, models.TypeExpense, from, to).
		Group("category").
		Order("total DESC").
		Scan(&categories).Error
	if err != nil {
		return nil, err
	}
	summary.ByCategory = categories

	return summary, nil
}
