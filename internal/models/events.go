package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Identity is one student mailbox processing context. Credentials are
// borrowed from the student store for the duration of a pipeline run.
type Identity struct {
	StudentID string `json:"student_id"`
	Address   string `json:"address"`
	Secret    string `json:"-"`
}

// RawMessage is one fetched email. It is transient: discarded after
// extraction, never persisted in full.
type RawMessage struct {
	StudentID   string    `json:"student_id"`
	UID         string    `json:"uid"`
	Fingerprint string    `json:"fingerprint"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Fingerprint derives a stable message identifier from the message ID and
// its timestamp, so repeats are recognizable across fetches.
func Fingerprint(messageID string, ts time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", messageID, ts.Unix())))
	return hex.EncodeToString(sum[:16])
}

// EventKind discriminates extraction results
type EventKind string

const (
	EventInterview  EventKind = "interview"
	EventReschedule EventKind = "reschedule"
	EventNone       EventKind = "none"
)

// TimeWindow is a requested day/time range for a reschedule
type TimeWindow struct {
	Day   string `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// ScheduleEvent is the result of extracting one message. Interview fields
// are set when Kind is EventInterview, Subject/Window when EventReschedule.
// Immutable once produced.
type ScheduleEvent struct {
	Kind      EventKind  `json:"kind"`
	Company   string     `json:"company,omitempty"`
	DriveTime time.Time  `json:"drive_time,omitempty"`
	Subject   string     `json:"subject,omitempty"`
	Window    TimeWindow `json:"window,omitempty"`
}

// NoEvent returns the empty extraction result
func NoEvent() ScheduleEvent {
	return ScheduleEvent{Kind: EventNone}
}

// NotificationResponse is the API shape for a notification row
type NotificationResponse struct {
	NotificationID uint      `json:"notification_id"`
	Type           string    `json:"type"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
}

// DashboardResponse aggregates a student's drives, reschedules and attendance
type DashboardResponse struct {
	StudentID   string             `json:"student_id"`
	Name        string             `json:"name"`
	Drives      []CompanyDrive     `json:"drives"`
	Reschedules []RescheduledClass `json:"rescheduled_classes"`
	Attendance  []Attendance       `json:"attendance"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Metrics   map[string]string `json:"metrics,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
