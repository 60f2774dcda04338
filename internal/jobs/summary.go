package jobs

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paisatrack/paisatrack-backend/internal/services"
	"github.com/paisatrack/paisatrack-backend/internal/storage"
)

// SummaryJob pushes a weekly spending digest to every linked user
type SummaryJob struct {
	store   storage.Store
	sender  services.MessageSender
	running atomic.Bool
	stop    chan struct{}
	stopped sync.Once
}

// NewSummaryJob creates a new summary job scheduler
func NewSummaryJob(store storage.Store, sender services.MessageSender) *SummaryJob {
	return &SummaryJob{
		store:  store,
		sender: sender,
		stop:   make(chan struct{}),
	}
}

// Start begins the scheduled summary job
func (j *SummaryJob) Start() {
	if !j.running.CompareAndSwap(false, true) {
		log.Println("Summary job already running")
		return
	}

	log.Println("Starting weekly summary job...")
	go j.scheduleWeeklySummary()
}

// Stop halts the scheduled job, waking it if it is waiting for the next run
func (j *SummaryJob) Stop() {
	j.stopped.Do(func() {
		close(j.stop)
		log.Println("Stopping weekly summary job...")
	})
}

// scheduleWeeklySummary runs every Sunday at 6 PM
func (j *SummaryJob) scheduleWeeklySummary() {
	for {
		now := time.Now()
		daysUntilSunday := (7 - int(now.Weekday())) % 7
		if daysUntilSunday == 0 && now.Hour() >= 18 {
			daysUntilSunday = 7 // Sunday after 6 PM, schedule for next week
		}

		nextRun := time.Date(now.Year(), now.Month(), now.Day()+daysUntilSunday, 18, 0, 0, 0, now.Location())
		duration := nextRun.Sub(now)

		log.Printf("Next weekly summary scheduled in %v", duration)
		timer := time.NewTimer(duration)
		select {
		case <-j.stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		j.sendWeeklySummaries()
	}
}

// sendWeeklySummaries sends the last 7 days of spending to all linked users
func (j *SummaryJob) sendWeeklySummaries() {
	log.Println("Sending weekly summaries...")

	users, err := j.store.GetLinkedUsers()
	if err != nil {
		log.Printf("Error getting users for weekly summary: %v", err)
		return
	}

	to := time.Now()
	from := to.AddDate(0, 0, -7)

	sent := 0
	for _, user := range users {
		summary, err := j.store.GetSpendingSummary(user.UserID, from, to)
		if err != nil {
			log.Printf("Error building summary for %s: %v", user.UserID, err)
			continue
		}

		// Quiet weeks get no message
		if summary.TotalExpense.IsZero() && summary.TotalIncome.IsZero() {
			continue
		}

		var b strings.Builder
		fmt.Fprintf(&b, "📊 *Your week, %s*\n\n", user.Name)
		fmt.Fprintf(&b, "💸 Spent: ₹%s\n", summary.TotalExpense.StringFixed(2))
		fmt.Fprintf(&b, "💰 Received: ₹%s\n", summary.TotalIncome.StringFixed(2))

		if len(summary.ByCategory) > 0 {
			b.WriteString("\nTop categories:\n")
			for i, ct := range summary.ByCategory {
				if i == 3 {
					break
				}
				fmt.Fprintf(&b, "• %s: ₹%s (%d)\n", ct.Category, ct.Total.StringFixed(2), ct.Count)
			}
		}

		b.WriteString("\nType \"add\" or \"import\" to record more.")

		if err := j.sender.SendText(user.Phone, b.String()); err != nil {
			log.Printf("Failed to send weekly summary to %s: %v", user.UserID, err)
			continue
		}
		sent++
	}

	log.Printf("Weekly summaries sent to %d user(s)", sent)
}
