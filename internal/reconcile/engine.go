// Package reconcile merges typed schedule events into durable state without
// duplication. Every processed message results in exactly one atomic write
// set against the persistence gateway.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"schedule-sync-go/internal/models"
	"schedule-sync-go/internal/repository"
)

// Gateway is the persistence surface the engine reconciles against
type Gateway interface {
	FindCompanyDrive(ctx context.Context, studentID, company string, at time.Time) (*models.CompanyDrive, error)
	ListWeeklySlots(ctx context.Context) ([]models.WeeklySlot, error)
	SlotAssignmentCounts(ctx context.Context) (map[uint]int, error)
	StudentOccupiedSlots(ctx context.Context, studentID string) ([]models.WeeklySlot, error)
	FindPendingReschedule(ctx context.Context, subjectID string, slotID uint) (*models.RescheduledClass, error)
	Apply(ctx context.Context, ws *repository.WriteSet) (bool, error)
}

// OutcomeKind classifies what reconciling one message did
type OutcomeKind string

const (
	OutcomeDriveCreated OutcomeKind = "drive_created"
	OutcomeRescheduled  OutcomeKind = "rescheduled"
	OutcomeDuplicate    OutcomeKind = "duplicate"
	OutcomeNoSlot       OutcomeKind = "no_slot"
	OutcomeNoEvent      OutcomeKind = "no_event"
)

// Outcome reports the result of reconciling one message
type Outcome struct {
	Kind      OutcomeKind `json:"kind"`
	StudentID string      `json:"student_id"`
	Detail    string      `json:"detail,omitempty"`
}

// Engine converts a schedule event plus current persisted state into a
// minimal, idempotent write set.
type Engine struct {
	gateway   Gateway
	allocator *Allocator
}

// NewEngine creates a reconciliation engine
func NewEngine(gateway Gateway, allocator *Allocator) *Engine {
	return &Engine{gateway: gateway, allocator: allocator}
}

// Reconcile merges one extracted event into durable state. The staged
// writes, the notification, and the durable fingerprint all land in a
// single transaction.
func (e *Engine) Reconcile(ctx context.Context, msg models.RawMessage, event models.ScheduleEvent) (*Outcome, error) {
	processed := &models.ProcessedMessage{
		StudentID:   msg.StudentID,
		Fingerprint: msg.Fingerprint,
		ProcessedAt: time.Now(),
	}

	switch event.Kind {
	case models.EventInterview:
		return e.reconcileInterview(ctx, msg.StudentID, event, processed)
	case models.EventReschedule:
		return e.reconcileReschedule(ctx, msg.StudentID, event, processed)
	default:
		if _, err := e.gateway.Apply(ctx, &repository.WriteSet{Processed: processed}); err != nil {
			return nil, err
		}
		return &Outcome{Kind: OutcomeNoEvent, StudentID: msg.StudentID}, nil
	}
}

func (e *Engine) reconcileInterview(ctx context.Context, studentID string, event models.ScheduleEvent, processed *models.ProcessedMessage) (*Outcome, error) {
	existing, err := e.gateway.FindCompanyDrive(ctx, studentID, event.Company, event.DriveTime)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logrus.Debugf("Drive for %s at %s already recorded, skipping", studentID, event.Company)
		if _, err := e.gateway.Apply(ctx, &repository.WriteSet{Processed: processed}); err != nil {
			return nil, err
		}
		return &Outcome{Kind: OutcomeDuplicate, StudentID: studentID, Detail: event.Company}, nil
	}

	ws := &repository.WriteSet{
		Drive: &models.CompanyDrive{
			StudentID:     studentID,
			CompanyName:   event.Company,
			DriveStage:    "Interview",
			DriveDatetime: event.DriveTime,
			Status:        "pending",
		},
		Notifications: []models.Notification{{
			StudentID: studentID,
			Type:      "interview",
			Message:   fmt.Sprintf("Upcoming Interview at %s on %s", event.Company, event.DriveTime.Format("2006-01-02 15:04")),
		}},
		Processed: processed,
	}

	applied, err := e.gateway.Apply(ctx, ws)
	if err != nil {
		return nil, err
	}
	if !applied {
		// idempotence-key collision: another run got here first
		return &Outcome{Kind: OutcomeDuplicate, StudentID: studentID, Detail: event.Company}, nil
	}
	logrus.Infof("Recorded company drive for %s: %s at %s", studentID, event.Company, event.DriveTime)
	return &Outcome{Kind: OutcomeDriveCreated, StudentID: studentID, Detail: event.Company}, nil
}

func (e *Engine) reconcileReschedule(ctx context.Context, studentID string, event models.ScheduleEvent, processed *models.ProcessedMessage) (*Outcome, error) {
	slots, err := e.gateway.ListWeeklySlots(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := e.gateway.SlotAssignmentCounts(ctx)
	if err != nil {
		return nil, err
	}
	booked, err := e.gateway.StudentOccupiedSlots(ctx, studentID)
	if err != nil {
		return nil, err
	}

	slot, err := e.allocator.Allocate(event.Window, slots, counts, booked)
	if errors.Is(err, ErrSlotExhausted) {
		logrus.Warnf("No slot available for %s reschedule of %s", studentID, event.Subject)
		ws := &repository.WriteSet{
			Notifications: []models.Notification{{
				StudentID: studentID,
				Type:      "slot_exhausted",
				Message:   fmt.Sprintf("No free slot found to reschedule %s; manual scheduling required", event.Subject),
			}},
			Processed: processed,
		}
		if _, err := e.gateway.Apply(ctx, ws); err != nil {
			return nil, err
		}
		return &Outcome{Kind: OutcomeNoSlot, StudentID: studentID, Detail: event.Subject}, nil
	}
	if err != nil {
		return nil, err
	}

	class, err := e.gateway.FindPendingReschedule(ctx, event.Subject, slot.SlotID)
	if err != nil {
		return nil, err
	}
	if class == nil {
		class = &models.RescheduledClass{
			SubjectID: event.Subject,
			SlotID:    slot.SlotID,
			Day:       slot.Day,
			StartTime: slot.StartTime,
			EndTime:   slot.EndTime,
			Status:    "pending",
		}
	}

	ws := &repository.WriteSet{
		Reschedule: class,
		Assignment: &models.RescheduledClassStudent{
			StudentID: studentID,
			Status:    "pending",
		},
		Attendance: &models.Attendance{
			StudentID: studentID,
			Status:    "absent",
		},
		Notifications: []models.Notification{{
			StudentID: studentID,
			Type:      "reschedule",
			Message:   fmt.Sprintf("Your %s class has been rescheduled to %s %s", event.Subject, slot.Day, slot.StartTime),
		}},
		Processed: processed,
	}

	applied, err := e.gateway.Apply(ctx, ws)
	if err != nil {
		return nil, err
	}
	if !applied {
		return &Outcome{Kind: OutcomeDuplicate, StudentID: studentID, Detail: event.Subject}, nil
	}
	logrus.Infof("Rescheduled %s for %s to %s %s", event.Subject, studentID, slot.Day, slot.StartTime)
	return &Outcome{Kind: OutcomeRescheduled, StudentID: studentID, Detail: event.Subject}, nil
}
