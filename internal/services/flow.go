package services

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paisatrack/paisatrack-backend/internal/models"
	"github.com/paisatrack/paisatrack-backend/internal/storage"
)

// Draft is the transaction being accumulated by the manual wizard. Fields
// are written in step order and frozen once the confirm step is reached.
type Draft struct {
	Type        string
	Category    string
	Amount      decimal.Decimal
	Description string
	Date        time.Time
}

// reply is one outbound message decided by a transition. Replies are sent
// after the session lock is released; side effects stay at step boundaries.
type reply struct {
	template string
	params   map[string]string
	text     string
}

func textReply(format string, args ...interface{}) reply {
	return reply{text: fmt.Sprintf(format, args...)}
}

func templateReply(name string, params map[string]string) reply {
	return reply{template: name, params: params}
}

// FlowService drives the conversational transaction-entry state machine
type FlowService struct {
	store    storage.Store
	sessions *SessionManager
	parser   ParserClient
	sender   MessageSender
}

// NewFlowService creates a new flow service
func NewFlowService(store storage.Store, sessions *SessionManager, parser ParserClient, sender MessageSender) *FlowService {
	return &FlowService{
		store:    store,
		sessions: sessions,
		parser:   parser,
		sender:   sender,
	}
}

// ProcessEvent is the entry point for every inbound chat event. Events for
// the same conversation are applied in arrival order; events for different
// conversations never block each other.
func (f *FlowService) ProcessEvent(ctx context.Context, from, body, buttonPayload string) error {
	phone := strings.TrimPrefix(from, "whatsapp:")
	intent := NormalizeEvent(body, buttonPayload)

	log.Printf("Flow: event from %s kind=%s", phone, intent.Kind)

	user, err := f.store.GetUserByPhone(phone)
	if err != nil {
		return f.handleUnlinked(phone, intent)
	}

	if err := f.store.TouchUser(user.UserID); err != nil {
		log.Printf("Failed to touch user %s: %v", user.UserID, err)
	}

	return f.handleLinked(ctx, user, phone, intent)
}

// send delivers the accumulated replies in order
func (f *FlowService) send(phone string, replies []reply) error {
	for _, r := range replies {
		var err error
		if r.template != "" {
			err = SendTemplateOrText(f.sender, phone, r.template, r.params)
		} else {
			err = f.sender.SendText(phone, r.text)
		}
		if err != nil {
			log.Printf("Failed to send reply to %s: %v", phone, err)
			return err
		}
	}
	return nil
}

// ---- Linking flow ----

// handleUnlinked routes events from numbers with no linked account. The
// linking flow is a single step: await an email, look it up, return to idle
// whatever the outcome.
func (f *FlowService) handleUnlinked(phone string, intent Intent) error {
	var replies []reply
	var email string

	f.sessions.Do(phone, func(sess *Session) *Session {
		if intent.Kind == IntentCommand && intent.Command == CommandCancel {
			replies = append(replies, textReply("Okay. Message me anytime to link your account."))
			return nil
		}

		// A message that looks like an email is an attempt regardless of
		// whether the prompt was already sent
		if intent.Kind == IntentText && strings.Contains(intent.Text, "@") {
			email = intent.Text
			return nil // linking resolves outside the lock; session returns to idle
		}

		if sess == nil {
			sess = NewSession(phone)
		}
		sess.EnterLinking()
		replies = append(replies, templateReply("link_prompt", map[string]string{}))
		return sess
	})

	if email != "" {
		replies = append(replies, f.resolveLink(phone, email)...)
	}

	return f.send(phone, replies)
}

// resolveLink performs the identity lookup and phone link. Runs without the
// session lock; the session was already returned to idle.
func (f *FlowService) resolveLink(phone, email string) []reply {
	user, err := f.store.GetUserByEmail(strings.TrimSpace(email))
	if err != nil {
		return []reply{textReply("❌ No account found for %s.\n\nCheck the spelling and send the email again, or sign up first at paisatrack.app.", strings.TrimSpace(email))}
	}

	if err := f.store.LinkPhoneToUser(user.UserID, phone); err != nil {
		log.Printf("Failed to link phone %s to user %s: %v", phone, user.UserID, err)
		return []reply{textReply("❌ Something went wrong linking your account. Please send your email again.")}
	}

	log.Printf("Linked %s to user %s", phone, user.UserID)
	return []reply{templateReply("link_success", map[string]string{"name": user.Name})}
}

// ---- Linked routing ----

func (f *FlowService) handleLinked(ctx context.Context, user *models.User, phone string, intent Intent) error {
	if intent.Kind == IntentCommand {
		return f.handleCommand(user, phone, intent.Command)
	}

	// Phase one: inspect and advance the session under its lock. External
	// calls are deferred to pendingAction and run after the lock is
	// released.
	var replies []reply
	var action pendingAction
	stale := false

	f.sessions.Do(phone, func(sess *Session) *Session {
		if sess == nil {
			// Free text at idle is not an error; a button is a leftover
			// from an expired exchange
			if intent.Kind == IntentButton {
				stale = true
				replies = f.staleReplies(user)
			} else {
				replies = []reply{{text: helpText()}}
			}
			return nil
		}

		switch sess.Mode {
		case ModeManual:
			replies, action = f.advanceManual(sess, intent)
			if sess.Mode == ModeNone {
				return nil // the transition ended the conversation
			}
			return sess
		case ModeNLP:
			replies, action = f.advanceNLP(sess, intent)
			if sess.Mode == ModeNone {
				return nil
			}
			return sess
		default:
			// A linked user has no business in Linking, and ModeNone
			// sessions are never stored. Treat as stale rather than guess.
			stale = true
			replies = f.staleReplies(user)
			return nil
		}
	})

	if err := f.send(phone, replies); err != nil {
		return err
	}
	if stale {
		// The user already got the restart prompt; the error is for the
		// caller's log, not for retrying
		return ErrSessionExpired
	}

	// Phase two: the at-most-one external call for this event, applied to
	// the session atomically on re-acquire.
	switch action.kind {
	case actionNone:
		return nil
	case actionParse:
		return f.runParse(ctx, user, phone, action)
	case actionCreate:
		return f.runCreate(user, phone, action)
	}
	return nil
}

// staleReplies is the uniform answer for expired or mode-mismatched actions
func (f *FlowService) staleReplies(user *models.User) []reply {
	return []reply{
		templateReply("session_expired", map[string]string{}),
		templateReply("main_menu", map[string]string{"name": user.Name}),
	}
}

func (f *FlowService) handleCommand(user *models.User, phone, command string) error {
	var replies []reply

	switch command {
	case CommandAdd:
		f.sessions.Do(phone, func(_ *Session) *Session {
			sess := NewSession(phone)
			sess.EnterManual()
			replies = []reply{reply{text: typePromptText()}}
			return sess
		})
	case CommandImport:
		f.sessions.Do(phone, func(_ *Session) *Session {
			sess := NewSession(phone)
			sess.EnterNLP()
			replies = []reply{reply{text: nlpPromptText()}}
			return sess
		})
	case CommandCancel:
		// A review batch reports what it already saved; everything else is
		// all-or-nothing
		var msg string
		f.sessions.Do(phone, func(sess *Session) *Session {
			switch {
			case sess == nil || sess.Mode == ModeNone:
				msg = "Nothing to cancel. Type \"add\" or \"import\" to start."
			case sess.Mode == ModeNLP && sess.NLP.Step == StepReview:
				msg = fmt.Sprintf("❌ Stopped. Saved %d of %d transaction(s).", sess.NLP.SavedCount, len(sess.NLP.Candidates))
			default:
				msg = "❌ Cancelled. Nothing was saved."
			}
			return nil
		})
		replies = []reply{textReply("%s", msg)}
	default: // CommandMenu and aliases
		replies = []reply{templateReply("main_menu", map[string]string{"name": user.Name})}
	}

	return f.send(phone, replies)
}

// ---- pending external actions ----

type actionKind int

const (
	actionNone actionKind = iota
	actionParse
	actionCreate
)

// pendingAction captures the single external call a transition decided on,
// plus everything needed to apply its outcome afterwards
type pendingAction struct {
	kind actionKind

	// actionParse
	text string

	// actionCreate
	txn        *models.Transaction
	fromManual bool
	cursor     int // NLP: candidate index this create belongs to
}

// ---- Manual wizard ----

// advanceManual applies one event to the wizard. Wrong-kind input re-prompts
// the same step and never touches the draft.
func (f *FlowService) advanceManual(sess *Session, intent Intent) ([]reply, pendingAction) {
	m := sess.Manual

	switch m.Step {
	case StepType:
		txnType, ok := matchType(intent)
		if !ok {
			return []reply{reply{text: typePromptText()}}, pendingAction{}
		}
		m.Draft.Type = txnType
		m.Step = StepCategory
		return []reply{reply{text: categoryPromptText()}}, pendingAction{}

	case StepCategory:
		category, ok := matchCategory(intent)
		if !ok {
			return []reply{reply{text: categoryPromptText()}}, pendingAction{}
		}
		m.Draft.Category = category
		m.Step = StepAmount
		return []reply{reply{text: amountPromptText()}}, pendingAction{}

	case StepAmount:
		if intent.Kind != IntentText {
			return []reply{reply{text: amountPromptText()}}, pendingAction{}
		}
		amount, err := ValidateAmount(intent.Text)
		if err != nil {
			return []reply{textReply("❌ %s", inputReason(err)), reply{text: amountPromptText()}}, pendingAction{}
		}
		m.Draft.Amount = amount
		m.Step = StepDescription
		return []reply{reply{text: descriptionPromptText()}}, pendingAction{}

	case StepDescription:
		if intent.Kind != IntentText {
			return []reply{reply{text: descriptionPromptText()}}, pendingAction{}
		}
		desc, err := ValidateDescription(intent.Text)
		if err != nil {
			return []reply{textReply("❌ %s", inputReason(err)), reply{text: descriptionPromptText()}}, pendingAction{}
		}
		m.Draft.Description = desc
		m.Step = StepDate
		return []reply{reply{text: datePromptText()}}, pendingAction{}

	case StepDate:
		dateText, ok := matchDateInput(intent)
		if !ok {
			return []reply{reply{text: datePromptText()}}, pendingAction{}
		}
		date, err := ValidateDate(dateText, time.Now())
		if err != nil {
			return []reply{textReply("❌ %s", inputReason(err)), reply{text: datePromptText()}}, pendingAction{}
		}
		m.Draft.Date = date
		m.Step = StepConfirm
		preview := RenderTransactionPreview(m.Draft.Type, m.Draft.Category, m.Draft.Amount, m.Draft.Description, m.Draft.Date)
		return []reply{textReply("%s\n\n✅ Save  ✏️ Edit  ❌ Cancel\n\nReply: save, edit, or cancel", preview)}, pendingAction{}

	case StepConfirm:
		return f.resolveConfirm(sess, intent)
	}

	// Unknown step means corrupted state; never guess
	log.Printf("Manual flow in unknown step %q for %s, resetting", m.Step, sess.ConversationID)
	sess.Reset()
	return []reply{reply{text: helpText()}}, pendingAction{}
}

// resolveConfirm handles the frozen-draft three-way choice. The Sink call
// itself happens outside the lock; Edit and Cancel resolve immediately.
func (f *FlowService) resolveConfirm(sess *Session, intent Intent) ([]reply, pendingAction) {
	choice, ok := matchConfirmChoice(intent)
	if !ok {
		return []reply{textReply("Please reply save, edit, or cancel.")}, pendingAction{}
	}

	switch choice {
	case "edit":
		sess.Reset()
		return []reply{textReply("✏️ Discarded — nothing was saved. Type \"add\" to start over.")}, pendingAction{}
	case "cancel":
		sess.Reset()
		return []reply{textReply("❌ Cancelled. Nothing was saved.")}, pendingAction{}
	}

	draft := sess.Manual.Draft
	txn := &models.Transaction{
		UserID:      "", // filled by runCreate; the draft knows nothing of identity
		Type:        draft.Type,
		Category:    draft.Category,
		Amount:      draft.Amount,
		Description: draft.Description,
		Date:        draft.Date,
		Source:      "manual",
	}
	return nil, pendingAction{kind: actionCreate, txn: txn, fromManual: true}
}

// runCreate performs the Sink call and re-acquires the session to apply the
// outcome atomically with the step transition. On an ambiguous failure the
// create is never retried automatically; the user decides.
func (f *FlowService) runCreate(user *models.User, phone string, action pendingAction) error {
	action.txn.UserID = user.UserID
	created, err := f.store.CreateTransaction(action.txn)
	if err != nil {
		err = &ExternalServiceError{Service: "transaction store", Err: err}
		log.Printf("Sink create failed for %s: %v", phone, err)
	} else {
		log.Printf("Transaction %s saved for %s", created.TransactionID, user.UserID)
	}

	var replies []reply
	f.sessions.Do(phone, func(sess *Session) *Session {
		if action.fromManual {
			return f.applyManualCreate(sess, action, err, &replies)
		}
		return f.applyNLPCreate(sess, action, err, &replies)
	})

	return f.send(phone, replies)
}

// applyManualCreate finishes the manual confirm step: success clears the
// session, failure keeps it so the user can retry without re-entering data
func (f *FlowService) applyManualCreate(sess *Session, action pendingAction, createErr error, replies *[]reply) *Session {
	current := sess != nil && sess.Mode == ModeManual && sess.Manual.Step == StepConfirm

	if createErr != nil {
		if current {
			*replies = append(*replies, textReply("⚠️ Couldn't save right now — the entry is kept. Reply save to retry, or cancel."))
			return sess
		}
		// The session moved on or expired; the failure has nowhere to land
		return sess
	}

	*replies = append(*replies, templateReply("transaction_saved", map[string]string{
		"amount":   formatAmount(action.txn.Amount),
		"category": action.txn.Category,
	}))
	if current {
		return nil // done, clear the conversation
	}
	return sess
}

// ---- NLP import flow ----

// advanceNLP applies one event to the import flow
func (f *FlowService) advanceNLP(sess *Session, intent Intent) ([]reply, pendingAction) {
	n := sess.NLP

	switch n.Step {
	case StepAwaitText:
		if intent.Kind != IntentText || intent.Text == "" {
			return []reply{reply{text: nlpPromptText()}}, pendingAction{}
		}
		// The parse runs outside the lock; the session stays at await_text
		// until the result is applied
		return []reply{textReply("🔍 Reading that for transactions...")}, pendingAction{kind: actionParse, text: intent.Text}

	case StepReview:
		choice, ok := matchReviewChoice(intent)
		if !ok {
			return []reply{reply{text: renderCandidateReview(n.Candidates[n.Cursor], n.Cursor+1, len(n.Candidates))}}, pendingAction{}
		}

		switch choice {
		case "cancel":
			saved, total := n.SavedCount, len(n.Candidates)
			sess.Reset()
			return []reply{textReply("❌ Stopped. Saved %d of %d transaction(s).", saved, total)}, pendingAction{}

		case "skip":
			n.Cursor++
			return f.reviewProgressReplies(sess), pendingAction{}

		default: // save
			candidate := n.Candidates[n.Cursor]
			txn := &models.Transaction{
				Type:        candidate.Type,
				Category:    MapCategory(candidate.Category),
				Amount:      candidate.Amount,
				Description: candidate.Description,
				Date:        candidate.Date,
				Source:      "nlp",
			}
			return nil, pendingAction{kind: actionCreate, txn: txn, cursor: n.Cursor}
		}
	}

	log.Printf("NLP flow in unknown step %q for %s, resetting", n.Step, sess.ConversationID)
	sess.Reset()
	return []reply{reply{text: helpText()}}, pendingAction{}
}

// reviewProgressReplies emits the next candidate, or the batch summary when
// the cursor has passed the last one (which clears the session)
func (f *FlowService) reviewProgressReplies(sess *Session) []reply {
	n := sess.NLP
	if n.Cursor >= len(n.Candidates) {
		saved, total := n.SavedCount, len(n.Candidates)
		sess.Reset()
		return []reply{textReply("🎉 Done! Saved %d of %d transaction(s).", saved, total)}
	}
	return []reply{reply{text: renderCandidateReview(n.Candidates[n.Cursor], n.Cursor+1, len(n.Candidates))}}
}

// runParse calls the Parser Client outside the session lock and applies the
// result. Empty and failed parses are distinct outcomes; both return the
// conversation to idle.
func (f *FlowService) runParse(ctx context.Context, user *models.User, phone string, action pendingAction) error {
	candidates, err := f.parser.Parse(ctx, action.text, time.Now())
	if err != nil {
		err = &ExternalServiceError{Service: "parser", Err: err}
		log.Printf("Parse failed for %s: %v", phone, err)
	}

	var replies []reply
	f.sessions.Do(phone, func(sess *Session) *Session {
		if sess == nil || sess.Mode != ModeNLP || sess.NLP.Step != StepAwaitText {
			// The session expired or the user moved on while the parser ran;
			// drop the result rather than repair state
			return sess
		}

		if err != nil {
			replies = append(replies, textReply("⚠️ The import service is having trouble right now. Your text wasn't processed — please try again in a bit."))
			return nil
		}

		if len(candidates) == 0 {
			replies = append(replies, textReply("🤷 I couldn't find any transactions in that. Try rephrasing, or use \"add\" for step-by-step entry."))
			return nil
		}

		sess.NLP.Step = StepReview
		sess.NLP.Candidates = candidates
		sess.NLP.Cursor = 0
		sess.NLP.SavedCount = 0
		replies = append(replies, reply{text: renderCandidateReview(candidates[0], 1, len(candidates))})
		return sess
	})

	return f.send(phone, replies)
}

// applyNLPCreate applies a per-candidate save outcome: success bumps the
// counter, failure is reported, and the batch advances either way so one bad
// candidate never stalls the rest
func (f *FlowService) applyNLPCreate(sess *Session, action pendingAction, createErr error, replies *[]reply) *Session {
	current := sess != nil && sess.Mode == ModeNLP &&
		sess.NLP.Step == StepReview && sess.NLP.Cursor == action.cursor
	if !current {
		// Another event moved the batch while the Sink call ran; the new
		// state owns the conversation now
		return sess
	}

	if createErr != nil {
		*replies = append(*replies, textReply("⚠️ Couldn't save that one — moving on."))
	} else {
		sess.NLP.SavedCount++
	}
	sess.NLP.Cursor++
	*replies = append(*replies, f.reviewProgressReplies(sess)...)

	if sess.Mode == ModeNone {
		return nil // batch finished, reviewProgressReplies reset the session
	}
	return sess
}

// ---- input matching helpers ----

func inputReason(err error) string {
	if ie, ok := err.(*InputError); ok {
		return ie.Reason
	}
	return err.Error()
}

func matchType(intent Intent) (string, bool) {
	switch intent.Kind {
	case IntentButton:
		switch intent.Button {
		case "type_expense":
			return models.TypeExpense, true
		case "type_income":
			return models.TypeIncome, true
		}
	case IntentText:
		switch strings.ToLower(strings.TrimSpace(intent.Text)) {
		case "1", "expense":
			return models.TypeExpense, true
		case "2", "income":
			return models.TypeIncome, true
		}
	}
	return "", false
}

func matchCategory(intent Intent) (string, bool) {
	switch intent.Kind {
	case IntentButton:
		name := strings.TrimPrefix(intent.Button, "cat_")
		if IsKnownCategory(name) {
			return name, true
		}
	case IntentText:
		text := strings.TrimSpace(intent.Text)
		if idx, err := strconv.Atoi(text); err == nil && idx >= 1 && idx <= len(Categories) {
			return Categories[idx-1], true
		}
		for _, c := range Categories {
			if strings.EqualFold(c, text) {
				return c, true
			}
		}
	}
	return "", false
}

func matchDateInput(intent Intent) (string, bool) {
	switch intent.Kind {
	case IntentButton:
		switch intent.Button {
		case "date_today":
			return "today", true
		case "date_yesterday":
			return "yesterday", true
		}
	case IntentText:
		text := strings.TrimSpace(intent.Text)
		switch text {
		case "1":
			return "today", true
		case "2":
			return "yesterday", true
		}
		return text, text != ""
	}
	return "", false
}

func matchConfirmChoice(intent Intent) (string, bool) {
	switch intent.Kind {
	case IntentButton:
		switch intent.Button {
		case "confirm_save":
			return "save", true
		case "confirm_edit":
			return "edit", true
		case "confirm_cancel":
			return "cancel", true
		}
	case IntentText:
		switch strings.ToLower(strings.TrimSpace(intent.Text)) {
		case "save", "yes", "confirm", "ok":
			return "save", true
		case "edit", "change":
			return "edit", true
		case "cancel", "no":
			return "cancel", true
		}
	}
	return "", false
}

func matchReviewChoice(intent Intent) (string, bool) {
	switch intent.Kind {
	case IntentButton:
		switch intent.Button {
		case "review_save":
			return "save", true
		case "review_skip":
			return "skip", true
		case "review_cancel":
			return "cancel", true
		}
	case IntentText:
		switch strings.ToLower(strings.TrimSpace(intent.Text)) {
		case "save", "yes", "confirm", "ok":
			return "save", true
		case "skip", "next":
			return "skip", true
		case "cancel", "stop", "no":
			return "cancel", true
		}
	}
	return "", false
}
