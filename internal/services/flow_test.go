package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paisatrack/paisatrack-backend/internal/models"
	"github.com/paisatrack/paisatrack-backend/internal/storage"
)

const (
	testFrom  = "whatsapp:+919876543210"
	testPhone = "+919876543210"
)

// ---- fakes ----

type capturedMessage struct {
	To       string
	Template string
	Body     string
}

type captureSender struct {
	mu       sync.Mutex
	messages []capturedMessage
}

func (c *captureSender) SendText(to, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, capturedMessage{To: to, Body: body})
	return nil
}

func (c *captureSender) SendTemplate(to, templateName string, params map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, capturedMessage{To: to, Template: templateName})
	return nil
}

func (c *captureSender) last() capturedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) == 0 {
		return capturedMessage{}
	}
	return c.messages[len(c.messages)-1]
}

func (c *captureSender) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

// allText joins every plain-text body sent so far, for contains checks
func (c *captureSender) allText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var b strings.Builder
	for _, m := range c.messages {
		b.WriteString(m.Body)
		b.WriteString("\n")
	}
	return b.String()
}

func (c *captureSender) templateNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var names []string
	for _, m := range c.messages {
		if m.Template != "" {
			names = append(names, m.Template)
		}
	}
	return names
}

type fakeParser struct {
	fn func(ctx context.Context, text string, referenceDate time.Time) ([]ParsedTransaction, error)
}

func (p *fakeParser) Parse(ctx context.Context, text string, referenceDate time.Time) ([]ParsedTransaction, error) {
	if p.fn == nil {
		return nil, nil
	}
	return p.fn(ctx, text, referenceDate)
}

// flakyStore wraps the memory store so tests can make a bounded number of
// creates fail and inspect everything that was persisted
type flakyStore struct {
	*storage.MemoryStore
	failNext int
	created  []*models.Transaction
}

func (s *flakyStore) CreateTransaction(txn *models.Transaction) (*models.Transaction, error) {
	if s.failNext > 0 {
		s.failNext--
		return nil, fmt.Errorf("store unavailable")
	}
	created, err := s.MemoryStore.CreateTransaction(txn)
	if err == nil {
		s.created = append(s.created, created)
	}
	return created, err
}

// ---- fixture ----

type flowFixture struct {
	flow     *FlowService
	store    *flakyStore
	sender   *captureSender
	parser   *fakeParser
	sessions *SessionManager
	user     *models.User
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()

	store := &flakyStore{MemoryStore: storage.NewMemoryStore()}
	user, err := store.CreateUser(&models.User{Name: "Asha", Email: "asha@example.com"})
	require.NoError(t, err)
	require.NoError(t, store.LinkPhoneToUser(user.UserID, testPhone))

	sender := &captureSender{}
	parser := &fakeParser{}
	sessions := newSessionManager(time.Minute)

	return &flowFixture{
		flow:     NewFlowService(store, sessions, parser, sender),
		store:    store,
		sender:   sender,
		parser:   parser,
		sessions: sessions,
		user:     user,
	}
}

func (fx *flowFixture) text(t *testing.T, body string) {
	t.Helper()
	require.NoError(t, fx.flow.ProcessEvent(context.Background(), testFrom, body, ""))
}

func (fx *flowFixture) button(t *testing.T, payload string) {
	t.Helper()
	require.NoError(t, fx.flow.ProcessEvent(context.Background(), testFrom, "", payload))
}

func candidate(txnType, category string, amount float64, desc string, confidence float64) ParsedTransaction {
	return ParsedTransaction{
		Type:        txnType,
		Category:    category,
		Amount:      decimal.NewFromFloat(amount),
		Description: desc,
		Date:        truncateToDay(time.Now()),
		Confidence:  confidence,
	}
}

// ---- manual wizard ----

func TestManualHappyPathCreatesExactlyOneTransaction(t *testing.T) {
	fx := newFlowFixture(t)

	fx.text(t, "add")
	fx.button(t, "type_expense")
	fx.button(t, "cat_Food")
	fx.text(t, "50")
	fx.text(t, "Lunch")
	fx.button(t, "date_today")

	// Confirm preview was shown before the save
	assert.Contains(t, fx.sender.last().Body, "Please confirm")
	assert.Contains(t, fx.sender.last().Body, "₹50.00")
	assert.Empty(t, fx.store.created)

	fx.button(t, "confirm_save")

	require.Len(t, fx.store.created, 1)
	txn := fx.store.created[0]
	assert.Equal(t, fx.user.UserID, txn.UserID)
	assert.Equal(t, models.TypeExpense, txn.Type)
	assert.Equal(t, "Food", txn.Category)
	assert.True(t, txn.Amount.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, "Lunch", txn.Description)
	assert.Equal(t, truncateToDay(time.Now()), txn.Date)
	assert.Equal(t, "manual", txn.Source)

	assert.Equal(t, "transaction_saved", fx.sender.last().Template)
	assert.False(t, fx.sessions.HasSession(testPhone), "no residue after save")
}

func TestManualNumericTextAnswers(t *testing.T) {
	fx := newFlowFixture(t)

	fx.text(t, "add")
	fx.text(t, "2")    // income
	fx.text(t, "7")    // Salary by list position
	fx.text(t, "₹1,200")
	fx.text(t, "August salary")
	fx.text(t, "yesterday")
	fx.text(t, "save")

	require.Len(t, fx.store.created, 1)
	txn := fx.store.created[0]
	assert.Equal(t, models.TypeIncome, txn.Type)
	assert.Equal(t, "Salary", txn.Category)
	assert.True(t, txn.Amount.Equal(decimal.NewFromInt(1200)))
	assert.Equal(t, truncateToDay(time.Now().AddDate(0, 0, -1)), txn.Date)
}

func TestManualWrongKindInputRepromptsWithoutAdvancing(t *testing.T) {
	fx := newFlowFixture(t)

	fx.text(t, "add")
	fx.button(t, "type_expense")
	fx.button(t, "cat_Food")

	// Amount step: a leftover button is the wrong kind of input
	fx.button(t, "cat_Transport")
	assert.Contains(t, fx.sender.last().Body, "How much?")

	// Invalid amounts re-prompt with the reason
	fx.text(t, "abc")
	assert.Contains(t, fx.sender.allText(), "❌")
	fx.text(t, "-5")

	sess, ok := fx.sessions.GetSession(testPhone)
	require.True(t, ok)
	require.Equal(t, ModeManual, sess.Mode)
	assert.Equal(t, StepAmount, sess.Manual.Step, "step must not move on bad input")
	assert.Equal(t, "Food", sess.Manual.Draft.Category, "draft must survive bad input")

	// Valid input still works afterwards
	fx.text(t, "50")
	sess, ok = fx.sessions.GetSession(testPhone)
	require.True(t, ok)
	assert.Equal(t, StepDescription, sess.Manual.Step)
	assert.Empty(t, fx.store.created)
}

func TestManualConfirmEditDiscardsDraft(t *testing.T) {
	fx := newFlowFixture(t)

	fx.text(t, "add")
	fx.button(t, "type_expense")
	fx.button(t, "cat_Food")
	fx.text(t, "50")
	fx.text(t, "Lunch")
	fx.button(t, "date_today")
	fx.text(t, "edit")

	assert.Empty(t, fx.store.created)
	assert.False(t, fx.sessions.HasSession(testPhone))
	assert.Contains(t, fx.sender.last().Body, "nothing was saved")
}

func TestManualConfirmSinkFailureKeepsSessionForRetry(t *testing.T) {
	fx := newFlowFixture(t)
	fx.store.failNext = 1

	fx.text(t, "add")
	fx.button(t, "type_expense")
	fx.button(t, "cat_Food")
	fx.text(t, "50")
	fx.text(t, "Lunch")
	fx.button(t, "date_today")
	fx.button(t, "confirm_save")

	assert.Contains(t, fx.sender.last().Body, "Couldn't save right now")
	sess, ok := fx.sessions.GetSession(testPhone)
	require.True(t, ok, "session must survive a sink failure")
	assert.Equal(t, StepConfirm, sess.Manual.Step)
	assert.Empty(t, fx.store.created)

	// The user retries and it goes through
	fx.text(t, "save")
	require.Len(t, fx.store.created, 1)
	assert.False(t, fx.sessions.HasSession(testPhone))
}

func TestCancelCommandClearsMidFlow(t *testing.T) {
	fx := newFlowFixture(t)

	fx.text(t, "add")
	fx.button(t, "type_expense")
	fx.text(t, "cancel")

	assert.Contains(t, fx.sender.last().Body, "Cancelled")
	assert.False(t, fx.sessions.HasSession(testPhone))
	assert.Empty(t, fx.store.created)

	// Cancel with nothing in flight is not an error
	fx.text(t, "cancel")
	assert.Contains(t, fx.sender.last().Body, "Nothing to cancel")
}

func TestAddCommandMidFlowRestartsWizard(t *testing.T) {
	fx := newFlowFixture(t)

	fx.text(t, "add")
	fx.button(t, "type_expense")
	fx.button(t, "cat_Food")
	fx.text(t, "add")

	sess, ok := fx.sessions.GetSession(testPhone)
	require.True(t, ok)
	require.Equal(t, ModeManual, sess.Mode)
	assert.Equal(t, StepType, sess.Manual.Step)
	assert.Empty(t, sess.Manual.Draft.Category, "restart must drop the old draft")
}

// ---- idle and expiry ----

func TestTextAtIdleGetsHelp(t *testing.T) {
	fx := newFlowFixture(t)

	fx.text(t, "what do I do")
	assert.Contains(t, fx.sender.last().Body, "Type \"add\"")
	assert.False(t, fx.sessions.HasSession(testPhone))
}

func TestButtonAtIdleIsStale(t *testing.T) {
	fx := newFlowFixture(t)

	err := fx.flow.ProcessEvent(context.Background(), testFrom, "", "confirm_save")
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, []string{"session_expired", "main_menu"}, fx.sender.templateNames())
	assert.Empty(t, fx.store.created)
}

func TestExpiredSessionInputIsStale(t *testing.T) {
	fx := newFlowFixture(t)
	fx.sessions.ttl = 30 * time.Millisecond

	fx.text(t, "add")
	fx.button(t, "type_expense")
	time.Sleep(60 * time.Millisecond)
	fx.sender.reset()

	err := fx.flow.ProcessEvent(context.Background(), testFrom, "", "cat_Food")
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, []string{"session_expired", "main_menu"}, fx.sender.templateNames())
	assert.False(t, fx.sessions.HasSession(testPhone))
	assert.Empty(t, fx.store.created)
}

func TestMenuCommand(t *testing.T) {
	fx := newFlowFixture(t)

	fx.text(t, "hi")
	assert.Equal(t, "main_menu", fx.sender.last().Template)
}

// ---- NLP import flow ----

func nlpStarted(t *testing.T, fx *flowFixture, candidates []ParsedTransaction, parseErr error) {
	t.Helper()
	fx.parser.fn = func(ctx context.Context, text string, ref time.Time) ([]ParsedTransaction, error) {
		return candidates, parseErr
	}
	fx.text(t, "import")
	fx.text(t, "coffee 80 and auto 120")
}

func TestNLPSaveAndSkipCountsCorrectly(t *testing.T) {
	fx := newFlowFixture(t)
	nlpStarted(t, fx, []ParsedTransaction{
		candidate(models.TypeExpense, "Food", 80, "Coffee", 0.9),
		candidate(models.TypeExpense, "Transport", 120, "Auto ride", 0.8),
	}, nil)

	assert.Contains(t, fx.sender.last().Body, "Transaction 1 of 2")

	fx.text(t, "save")
	require.Len(t, fx.store.created, 1)
	assert.Contains(t, fx.sender.last().Body, "Transaction 2 of 2")

	fx.text(t, "skip")
	require.Len(t, fx.store.created, 1)
	assert.Contains(t, fx.sender.last().Body, "Saved 1 of 2")
	assert.False(t, fx.sessions.HasSession(testPhone))

	txn := fx.store.created[0]
	assert.True(t, txn.Amount.Equal(decimal.NewFromInt(80)))
	assert.Equal(t, "nlp", txn.Source)
}

func TestNLPSaveAllPreservesOrder(t *testing.T) {
	fx := newFlowFixture(t)
	nlpStarted(t, fx, []ParsedTransaction{
		candidate(models.TypeExpense, "Food", 80, "Coffee", 0.9),
		candidate(models.TypeExpense, "Transport", 120, "Auto ride", 0.8),
	}, nil)

	fx.text(t, "save")
	fx.text(t, "save")

	require.Len(t, fx.store.created, 2)
	assert.True(t, fx.store.created[0].Amount.Equal(decimal.NewFromInt(80)))
	assert.True(t, fx.store.created[1].Amount.Equal(decimal.NewFromInt(120)))
	assert.Contains(t, fx.sender.last().Body, "Saved 2 of 2")
	assert.False(t, fx.sessions.HasSession(testPhone))
}

func TestNLPCancelAllReportsSavedCountAndClears(t *testing.T) {
	fx := newFlowFixture(t)
	nlpStarted(t, fx, []ParsedTransaction{
		candidate(models.TypeExpense, "Food", 80, "Coffee", 0.9),
		candidate(models.TypeExpense, "Transport", 120, "Auto ride", 0.8),
		candidate(models.TypeIncome, "Salary", 2000, "Bonus", 0.7),
	}, nil)

	fx.text(t, "save")
	fx.text(t, "cancel")

	require.Len(t, fx.store.created, 1)
	assert.Contains(t, fx.sender.last().Body, "Saved 1 of 3")
	assert.False(t, fx.sessions.HasSession(testPhone), "cancel must leave no residue")
}

func TestNLPPerCandidateSinkFailureAdvancesBatch(t *testing.T) {
	fx := newFlowFixture(t)
	nlpStarted(t, fx, []ParsedTransaction{
		candidate(models.TypeExpense, "Food", 80, "Coffee", 0.9),
		candidate(models.TypeExpense, "Transport", 120, "Auto ride", 0.8),
	}, nil)
	fx.store.failNext = 1

	fx.text(t, "save")
	assert.Contains(t, fx.sender.allText(), "Couldn't save that one")
	assert.Contains(t, fx.sender.last().Body, "Transaction 2 of 2", "one bad candidate must not stall the batch")

	fx.text(t, "save")
	require.Len(t, fx.store.created, 1)
	assert.Contains(t, fx.sender.last().Body, "Saved 1 of 2")
}

func TestNLPCandidateCategoryIsMappedOnSave(t *testing.T) {
	fx := newFlowFixture(t)
	nlpStarted(t, fx, []ParsedTransaction{
		candidate(models.TypeExpense, "groceries", 450, "Weekly shop", 0.85),
	}, nil)

	fx.text(t, "save")
	require.Len(t, fx.store.created, 1)
	assert.Equal(t, "Food", fx.store.created[0].Category)
}

func TestNLPEmptyParseClearsSession(t *testing.T) {
	fx := newFlowFixture(t)
	nlpStarted(t, fx, nil, nil)

	assert.Contains(t, fx.sender.last().Body, "couldn't find any transactions")
	assert.False(t, fx.sessions.HasSession(testPhone))
	assert.Empty(t, fx.store.created)
}

func TestNLPParserFailureClearsSession(t *testing.T) {
	fx := newFlowFixture(t)
	nlpStarted(t, fx, nil, fmt.Errorf("model timeout"))

	assert.Contains(t, fx.sender.last().Body, "having trouble")
	assert.False(t, fx.sessions.HasSession(testPhone))
}

func TestNLPUnrecognizedReviewInputRepromptsSameCandidate(t *testing.T) {
	fx := newFlowFixture(t)
	nlpStarted(t, fx, []ParsedTransaction{
		candidate(models.TypeExpense, "Food", 80, "Coffee", 0.9),
		candidate(models.TypeExpense, "Transport", 120, "Auto ride", 0.8),
	}, nil)

	fx.text(t, "maybe?")
	assert.Contains(t, fx.sender.last().Body, "Transaction 1 of 2")
	assert.Empty(t, fx.store.created)
}

// ---- linking ----

func TestUnlinkedNumberGetsLinkPrompt(t *testing.T) {
	fx := newFlowFixture(t)
	stranger := "whatsapp:+911111111111"

	require.NoError(t, fx.flow.ProcessEvent(context.Background(), stranger, "hello", ""))
	assert.Equal(t, "link_prompt", fx.sender.last().Template)

	sess, ok := fx.sessions.GetSession("+911111111111")
	require.True(t, ok)
	assert.Equal(t, ModeLinking, sess.Mode)
}

func TestLinkingWithKnownEmailLinksAndReturnsToIdle(t *testing.T) {
	fx := newFlowFixture(t)
	_, err := fx.store.CreateUser(&models.User{Name: "Ravi", Email: "ravi@example.com"})
	require.NoError(t, err)
	stranger := "whatsapp:+911111111111"

	require.NoError(t, fx.flow.ProcessEvent(context.Background(), stranger, "hello", ""))
	require.NoError(t, fx.flow.ProcessEvent(context.Background(), stranger, "ravi@example.com", ""))

	assert.Equal(t, "link_success", fx.sender.last().Template)
	assert.False(t, fx.sessions.HasSession("+911111111111"))

	linked, err := fx.store.GetUserByPhone("+911111111111")
	require.NoError(t, err)
	assert.Equal(t, "Ravi", linked.Name)
}

func TestLinkingWithUnknownEmailReturnsToIdle(t *testing.T) {
	fx := newFlowFixture(t)
	stranger := "whatsapp:+911111111111"

	require.NoError(t, fx.flow.ProcessEvent(context.Background(), stranger, "hello", ""))
	require.NoError(t, fx.flow.ProcessEvent(context.Background(), stranger, "nobody@example.com", ""))

	assert.Contains(t, fx.sender.last().Body, "No account found")
	assert.False(t, fx.sessions.HasSession("+911111111111"), "failed linking must return to idle, not loop")
}
