package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"schedule-sync-go/internal/models"
)

// WriteSet is the staged output of reconciling one message. Everything in it
// is applied as a single transaction: success or full rollback.
type WriteSet struct {
	Drive         *models.CompanyDrive
	Reschedule    *models.RescheduledClass
	Assignment    *models.RescheduledClassStudent
	Attendance    *models.Attendance
	Notifications []models.Notification
	Processed     *models.ProcessedMessage
}

// errAlreadyApplied aborts the transaction when an idempotence key collides,
// signalling prior successful processing rather than a failure.
var errAlreadyApplied = errors.New("write set already applied")

type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Ping verifies database connectivity. A failure here is the one condition
// that halts a whole pipeline run.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Raw("SELECT 1").Error; err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func (r *Repository) ListStudents(ctx context.Context) ([]models.Student, error) {
	var students []models.Student
	if err := r.db.WithContext(ctx).Find(&students).Error; err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	return students, nil
}

func (r *Repository) GetStudent(ctx context.Context, studentID string) (*models.Student, error) {
	var student models.Student
	result := r.db.WithContext(ctx).Where("student_id = ?", studentID).First(&student)
	if result.Error == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get student: %w", result.Error)
	}
	return &student, nil
}

func (r *Repository) ListWeeklySlots(ctx context.Context) ([]models.WeeklySlot, error) {
	var slots []models.WeeklySlot
	if err := r.db.WithContext(ctx).Order("slot_id").Find(&slots).Error; err != nil {
		return nil, fmt.Errorf("failed to list weekly slots: %w", err)
	}
	return slots, nil
}

func (r *Repository) CreateWeeklySlot(ctx context.Context, slot *models.WeeklySlot) error {
	if err := r.db.WithContext(ctx).Create(slot).Error; err != nil {
		return fmt.Errorf("failed to create weekly slot: %w", err)
	}
	return nil
}

// SlotAssignmentCounts returns the number of pending student assignments per
// slot, feeding the allocator's load balancing.
func (r *Repository) SlotAssignmentCounts(ctx context.Context) (map[uint]int, error) {
	type row struct {
		SlotID uint
		N      int
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Table("rescheduled_class_student").
		Select("rescheduled_class.slot_id AS slot_id, COUNT(*) AS n").
		Joins("JOIN rescheduled_class ON rescheduled_class.reschedule_id = rescheduled_class_student.reschedule_id").
		Where("rescheduled_class.status = ?", "pending").
		Group("rescheduled_class.slot_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count slot assignments: %w", err)
	}
	counts := make(map[uint]int, len(rows))
	for _, row := range rows {
		counts[row.SlotID] = row.N
	}
	return counts, nil
}

// StudentOccupiedSlots returns every time window the student is already
// committed to: slots of pending rescheduled classes they are assigned to,
// plus the regular weekly classes of their enrolled subjects. The allocator
// must never book over either.
func (r *Repository) StudentOccupiedSlots(ctx context.Context, studentID string) ([]models.WeeklySlot, error) {
	var slots []models.WeeklySlot
	err := r.db.WithContext(ctx).
		Table("weekly_slot").
		Joins("JOIN rescheduled_class ON rescheduled_class.slot_id = weekly_slot.slot_id").
		Joins("JOIN rescheduled_class_student ON rescheduled_class_student.reschedule_id = rescheduled_class.reschedule_id").
		Where("rescheduled_class_student.student_id = ? AND rescheduled_class.status = ?", studentID, "pending").
		Find(&slots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list student pending slots: %w", err)
	}

	// Regular timetable entries are not weekly_slot rows; carry them as
	// day/time windows only.
	var regular []models.WeeklySlot
	err = r.db.WithContext(ctx).
		Table("subject_schedule").
		Select("subject_schedule.day AS day, subject_schedule.start_time AS start_time, subject_schedule.end_time AS end_time").
		Joins("JOIN student_subject ON student_subject.subject_id = subject_schedule.subject_id").
		Where("student_subject.student_id = ?", studentID).
		Scan(&regular).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list student regular classes: %w", err)
	}

	return append(slots, regular...), nil
}

func (r *Repository) FindCompanyDrive(ctx context.Context, studentID, company string, at time.Time) (*models.CompanyDrive, error) {
	var drive models.CompanyDrive
	result := r.db.WithContext(ctx).
		Where("student_id = ? AND company_name = ? AND drive_datetime = ?", studentID, company, at).
		First(&drive)
	if result.Error == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("failed to find company drive: %w", result.Error)
	}
	return &drive, nil
}

func (r *Repository) FindPendingReschedule(ctx context.Context, subjectID string, slotID uint) (*models.RescheduledClass, error) {
	var class models.RescheduledClass
	result := r.db.WithContext(ctx).
		Where("subject_id = ? AND slot_id = ? AND status = ?", subjectID, slotID, "pending").
		First(&class)
	if result.Error == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("failed to find pending reschedule: %w", result.Error)
	}
	return &class, nil
}

// Apply writes one staged WriteSet atomically. A duplicate idempotence key
// rolls the transaction back and reports applied=false with no error: the
// message was already processed by an earlier run.
func (r *Repository) Apply(ctx context.Context, ws *WriteSet) (bool, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if ws.Drive != nil {
			if err := tx.Create(ws.Drive).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return errAlreadyApplied
				}
				return fmt.Errorf("failed to insert company drive: %w", err)
			}
			for i := range ws.Notifications {
				if ws.Notifications[i].Type == "interview" {
					ws.Notifications[i].DriveID = &ws.Drive.RecordID
				}
			}
		}

		if ws.Reschedule != nil {
			if ws.Reschedule.RescheduleID == 0 {
				if err := tx.Create(ws.Reschedule).Error; err != nil {
					return fmt.Errorf("failed to insert rescheduled class: %w", err)
				}
			}
			if ws.Assignment != nil {
				ws.Assignment.RescheduleID = ws.Reschedule.RescheduleID
				if err := tx.Create(ws.Assignment).Error; err != nil {
					if errors.Is(err, gorm.ErrDuplicatedKey) {
						return errAlreadyApplied
					}
					return fmt.Errorf("failed to insert class assignment: %w", err)
				}
			}
			if ws.Attendance != nil {
				ws.Attendance.RescheduleID = &ws.Reschedule.RescheduleID
				if err := tx.Create(ws.Attendance).Error; err != nil {
					return fmt.Errorf("failed to insert attendance: %w", err)
				}
			}
			for i := range ws.Notifications {
				if ws.Notifications[i].Type == "reschedule" {
					ws.Notifications[i].RescheduleID = &ws.Reschedule.RescheduleID
				}
			}
		}

		for i := range ws.Notifications {
			if err := tx.Create(&ws.Notifications[i]).Error; err != nil {
				return fmt.Errorf("failed to insert notification: %w", err)
			}
		}

		if ws.Processed != nil {
			if err := tx.Create(ws.Processed).Error; err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("failed to record processed message: %w", err)
			}
		}

		return nil
	})
	if errors.Is(err, errAlreadyApplied) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListNotifications returns all notifications for a student, newest first
func (r *Repository) ListNotifications(ctx context.Context, studentID string) ([]models.Notification, error) {
	var notifications []models.Notification
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("created_at DESC").
		Find(&notifications).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

func (r *Repository) ListDrives(ctx context.Context, studentID string) ([]models.CompanyDrive, error) {
	var drives []models.CompanyDrive
	if err := r.db.WithContext(ctx).Where("student_id = ?", studentID).Find(&drives).Error; err != nil {
		return nil, fmt.Errorf("failed to list drives: %w", err)
	}
	return drives, nil
}

func (r *Repository) ListReschedulesForStudent(ctx context.Context, studentID string) ([]models.RescheduledClass, error) {
	var classes []models.RescheduledClass
	err := r.db.WithContext(ctx).
		Joins("JOIN rescheduled_class_student ON rescheduled_class_student.reschedule_id = rescheduled_class.reschedule_id").
		Where("rescheduled_class_student.student_id = ?", studentID).
		Find(&classes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reschedules: %w", err)
	}
	return classes, nil
}

func (r *Repository) ListAttendance(ctx context.Context, studentID string) ([]models.Attendance, error) {
	var records []models.Attendance
	if err := r.db.WithContext(ctx).Where("student_id = ?", studentID).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}
	return records, nil
}

// ListProcessedSince returns durable fingerprints newer than the cutoff,
// used to warm the in-memory dedup cache after a restart.
func (r *Repository) ListProcessedSince(ctx context.Context, since time.Time) ([]models.ProcessedMessage, error) {
	var processed []models.ProcessedMessage
	err := r.db.WithContext(ctx).
		Where("processed_at > ?", since).
		Order("processed_at").
		Find(&processed).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list processed messages: %w", err)
	}
	return processed, nil
}
