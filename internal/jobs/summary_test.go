package jobs

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paisatrack/paisatrack-backend/internal/models"
	"github.com/paisatrack/paisatrack-backend/internal/storage"
)

type recordedMessage struct {
	To   string
	Body string
}

type recordingSender struct {
	mu       sync.Mutex
	messages []recordedMessage
}

func (r *recordingSender) SendText(to, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, recordedMessage{To: to, Body: body})
	return nil
}

func (r *recordingSender) SendTemplate(to, templateName string, params map[string]string) error {
	return r.SendText(to, templateName)
}

func (r *recordingSender) all() []recordedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedMessage(nil), r.messages...)
}

func TestSummaryJobStartStopIdempotent(t *testing.T) {
	job := NewSummaryJob(storage.NewMemoryStore(), &recordingSender{})

	job.Start()
	job.Start() // second start must not spawn a second scheduler

	// Stop must wake the scheduler out of its wait and tolerate repeats
	done := make(chan struct{})
	go func() {
		job.Stop()
		job.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked")
	}
}

func TestSendWeeklySummariesSkipsQuietUsers(t *testing.T) {
	store := storage.NewMemoryStore()
	sender := &recordingSender{}

	active, err := store.CreateUser(&models.User{Name: "Asha", Email: "asha@example.com"})
	require.NoError(t, err)
	require.NoError(t, store.LinkPhoneToUser(active.UserID, "+919876543210"))

	quiet, err := store.CreateUser(&models.User{Name: "Ravi", Email: "ravi@example.com"})
	require.NoError(t, err)
	require.NoError(t, store.LinkPhoneToUser(quiet.UserID, "+919876543211"))

	// Within the last seven days
	day := time.Now().AddDate(0, 0, -2)
	for _, txn := range []struct {
		txnType, category string
		amount            float64
	}{
		{models.TypeExpense, "Food", 250},
		{models.TypeExpense, "Transport", 120},
		{models.TypeIncome, "Salary", 5000},
	} {
		_, err := store.CreateTransaction(&models.Transaction{
			UserID:   active.UserID,
			Type:     txn.txnType,
			Category: txn.category,
			Amount:   decimal.NewFromFloat(txn.amount),
			Date:     day,
		})
		require.NoError(t, err)
	}

	job := NewSummaryJob(store, sender)
	job.sendWeeklySummaries()

	messages := sender.all()
	require.Len(t, messages, 1, "quiet weeks get no message")
	assert.Equal(t, "+919876543210", messages[0].To)
	assert.Contains(t, messages[0].Body, "Asha")
	assert.Contains(t, messages[0].Body, "Spent: ₹370.00")
	assert.Contains(t, messages[0].Body, "Received: ₹5000.00")
	assert.Contains(t, messages[0].Body, "Food: ₹250.00")
}
