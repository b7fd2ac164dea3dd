package pipeline

import (
	"sync"
	"time"

	"schedule-sync-go/internal/reconcile"
)

// IdentityFailure records one identity the run could not process
type IdentityFailure struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// Report summarizes one pipeline run. Per-identity failures are isolated
// here rather than aborting siblings.
type Report struct {
	mu sync.Mutex

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Succeeded []string          `json:"succeeded"`
	Failed    []IdentityFailure `json:"failed"`

	MessagesFetched int `json:"messages_fetched"`
	MessagesDeduped int `json:"messages_deduped"`
	DrivesCreated   int `json:"drives_created"`
	Rescheduled     int `json:"rescheduled"`
	SlotExhausted   int `json:"slot_exhausted"`
	Duplicates      int `json:"duplicates"`
	NoEvents        int `json:"no_events"`
	MessageFailures int `json:"message_failures"`
}

func newReport() *Report {
	return &Report{
		StartedAt: time.Now(),
		Succeeded: []string{},
		Failed:    []IdentityFailure{},
	}
}

func (r *Report) succeed(studentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Succeeded = append(r.Succeeded, studentID)
}

func (r *Report) fail(studentID, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed = append(r.Failed, IdentityFailure{StudentID: studentID, Reason: reason})
}

func (r *Report) addFetched(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.MessagesFetched += n
}

func (r *Report) addDeduped(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.MessagesDeduped += n
}

func (r *Report) addMessageFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.MessageFailures++
}

func (r *Report) record(outcome *reconcile.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch outcome.Kind {
	case reconcile.OutcomeDriveCreated:
		r.DrivesCreated++
	case reconcile.OutcomeRescheduled:
		r.Rescheduled++
	case reconcile.OutcomeNoSlot:
		r.SlotExhausted++
	case reconcile.OutcomeDuplicate:
		r.Duplicates++
	case reconcile.OutcomeNoEvent:
		r.NoEvents++
	}
}

func (r *Report) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = time.Now()
}
