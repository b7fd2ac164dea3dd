package models

import (
	"time"
)

// Student represents one student whose mailbox is processed by the pipeline
type Student struct {
	StudentID string `json:"student_id" gorm:"primaryKey;type:varchar(64)"`
	Name      string `json:"name" gorm:"type:varchar(255)"`
	Email     string `json:"email" gorm:"type:varchar(255);not null"`
	Password  string `json:"-" gorm:"type:varchar(255)"`
}

// TableName specifies the table name for Student
func (Student) TableName() string {
	return "students"
}

// Subject represents a course subject
type Subject struct {
	SubjectID   string `json:"subject_id" gorm:"primaryKey;type:varchar(64)"`
	SubjectName string `json:"subject_name" gorm:"type:varchar(255)"`
}

// TableName specifies the table name for Subject
func (Subject) TableName() string {
	return "subjects"
}

// SubjectSchedule represents a regular weekly class occurrence for a subject
type SubjectSchedule struct {
	ScheduleID uint   `json:"schedule_id" gorm:"primaryKey;autoIncrement"`
	SubjectID  string `json:"subject_id" gorm:"type:varchar(64);index"`
	Day        string `json:"day" gorm:"type:varchar(16)"`
	StartTime  string `json:"start_time" gorm:"type:varchar(8)"`
	EndTime    string `json:"end_time" gorm:"type:varchar(8)"`
}

// TableName specifies the table name for SubjectSchedule
func (SubjectSchedule) TableName() string {
	return "subject_schedule"
}

// StudentSubject links a student to a subject they are enrolled in
type StudentSubject struct {
	StudentID string `json:"student_id" gorm:"primaryKey;type:varchar(64)"`
	SubjectID string `json:"subject_id" gorm:"primaryKey;type:varchar(64)"`
}

// TableName specifies the table name for StudentSubject
func (StudentSubject) TableName() string {
	return "student_subject"
}

// Attendance represents an attendance record for a student
type Attendance struct {
	AttendanceID uint   `json:"attendance_id" gorm:"primaryKey;autoIncrement"`
	StudentID    string `json:"student_id" gorm:"type:varchar(64);index"`
	ScheduleID   *uint  `json:"schedule_id" gorm:"index"`
	RescheduleID *uint  `json:"reschedule_id" gorm:"index"`
	Status       string `json:"status" gorm:"type:varchar(16);not null"` // present, absent
}

// TableName specifies the table name for Attendance
func (Attendance) TableName() string {
	return "attendance"
}

// WeeklySlot is a predefined recurring time window usable for rescheduled classes
type WeeklySlot struct {
	SlotID    uint   `json:"slot_id" gorm:"primaryKey;autoIncrement"`
	Day       string `json:"day" gorm:"type:varchar(16);not null"`
	StartTime string `json:"start_time" gorm:"type:varchar(8);not null"`
	EndTime   string `json:"end_time" gorm:"type:varchar(8);not null"`
}

// TableName specifies the table name for WeeklySlot
func (WeeklySlot) TableName() string {
	return "weekly_slot"
}

// RescheduledClass is a concrete makeup class bound to a weekly slot.
// Rows are never deleted; a superseded class is flipped to status "done".
type RescheduledClass struct {
	RescheduleID uint      `json:"reschedule_id" gorm:"primaryKey;autoIncrement"`
	SubjectID    string    `json:"subject_id" gorm:"type:varchar(64);index"`
	SlotID       uint      `json:"slot_id" gorm:"index"`
	Day          string    `json:"day" gorm:"type:varchar(16)"`
	StartTime    string    `json:"start_time" gorm:"type:varchar(8)"`
	EndTime      string    `json:"end_time" gorm:"type:varchar(8)"`
	Status       string    `json:"status" gorm:"type:varchar(16);not null;default:pending"` // pending, done
	CreatedAt    time.Time `json:"created_at"`
}

// TableName specifies the table name for RescheduledClass
func (RescheduledClass) TableName() string {
	return "rescheduled_class"
}

// RescheduledClassStudent assigns a student to a rescheduled class.
// The composite primary key makes re-assignment idempotent.
type RescheduledClassStudent struct {
	RescheduleID uint   `json:"reschedule_id" gorm:"primaryKey"`
	StudentID    string `json:"student_id" gorm:"primaryKey;type:varchar(64)"`
	Status       string `json:"status" gorm:"type:varchar(16);not null;default:pending"` // pending, done
}

// TableName specifies the table name for RescheduledClassStudent
func (RescheduledClassStudent) TableName() string {
	return "rescheduled_class_student"
}

// CompanyDrive is a concrete interview record extracted from a student's mail.
// The composite unique index is the idempotence key: re-processing the same
// interview event must not create a second row.
type CompanyDrive struct {
	RecordID      uint      `json:"record_id" gorm:"primaryKey;autoIncrement"`
	StudentID     string    `json:"student_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_drive_identity"`
	CompanyName   string    `json:"company_name" gorm:"type:varchar(255);not null;uniqueIndex:idx_drive_identity"`
	DriveStage    string    `json:"drive_stage" gorm:"type:varchar(16);not null"` // OA, Interview
	DriveDatetime time.Time `json:"drive_datetime" gorm:"not null;uniqueIndex:idx_drive_identity"`
	Status        string    `json:"status" gorm:"type:varchar(16);not null;default:pending"` // pending, done
	CreatedAt     time.Time `json:"created_at"`
}

// TableName specifies the table name for CompanyDrive
func (CompanyDrive) TableName() string {
	return "student_company_drive"
}

// Notification is an append-only fact consumed by the dashboard
type Notification struct {
	NotificationID uint      `json:"notification_id" gorm:"primaryKey;autoIncrement"`
	StudentID      string    `json:"student_id" gorm:"type:varchar(64);index;not null"`
	Type           string    `json:"type" gorm:"type:varchar(16);not null"` // interview, reschedule, slot_exhausted
	Message        string    `json:"message" gorm:"type:text"`
	DriveID        *uint     `json:"drive_id,omitempty" gorm:"index"`
	RescheduleID   *uint     `json:"reschedule_id,omitempty" gorm:"index"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName specifies the table name for Notification
func (Notification) TableName() string {
	return "notifications"
}

// ProcessedMessage records a durably processed message fingerprint.
// It backs the in-memory cache across restarts: the unique index makes a
// replayed fingerprint a detectable no-op at write time.
type ProcessedMessage struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	StudentID   string    `json:"student_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_student_fingerprint"`
	Fingerprint string    `json:"fingerprint" gorm:"type:varchar(64);not null;uniqueIndex:idx_student_fingerprint"`
	ProcessedAt time.Time `json:"processed_at"`
}

// TableName specifies the table name for ProcessedMessage
func (ProcessedMessage) TableName() string {
	return "processed_messages"
}
