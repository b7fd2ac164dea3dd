package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedule-sync-go/internal/models"
	"schedule-sync-go/internal/repository"
)

// fakeGateway emulates the repository's transactional semantics in memory:
// writes either land as a whole or not at all, and idempotence-key
// collisions turn Apply into a no-op success.
type fakeGateway struct {
	slots       []models.WeeklySlot
	timetable   map[string][]models.WeeklySlot
	drives      map[string]models.CompanyDrive
	assignments map[string]bool
	reschedules []models.RescheduledClass
	notified    []models.Notification
	processed   map[string]bool
	applyErr    error
	nextClassID uint
}

func newFakeGateway(slots []models.WeeklySlot) *fakeGateway {
	return &fakeGateway{
		slots:       slots,
		drives:      map[string]models.CompanyDrive{},
		assignments: map[string]bool{},
		processed:   map[string]bool{},
		nextClassID: 1,
	}
}

func driveKey(studentID, company string, at time.Time) string {
	return fmt.Sprintf("%s|%s|%d", studentID, company, at.Unix())
}

func (g *fakeGateway) FindCompanyDrive(_ context.Context, studentID, company string, at time.Time) (*models.CompanyDrive, error) {
	if d, ok := g.drives[driveKey(studentID, company, at)]; ok {
		return &d, nil
	}
	return nil, nil
}

func (g *fakeGateway) ListWeeklySlots(context.Context) ([]models.WeeklySlot, error) {
	return g.slots, nil
}

func (g *fakeGateway) SlotAssignmentCounts(context.Context) (map[uint]int, error) {
	counts := map[uint]int{}
	for _, class := range g.reschedules {
		counts[class.SlotID]++
	}
	return counts, nil
}

func (g *fakeGateway) StudentOccupiedSlots(_ context.Context, studentID string) ([]models.WeeklySlot, error) {
	return g.timetable[studentID], nil
}

func (g *fakeGateway) FindPendingReschedule(_ context.Context, subjectID string, slotID uint) (*models.RescheduledClass, error) {
	for _, class := range g.reschedules {
		if class.SubjectID == subjectID && class.SlotID == slotID && class.Status == "pending" {
			c := class
			return &c, nil
		}
	}
	return nil, nil
}

func (g *fakeGateway) Apply(_ context.Context, ws *repository.WriteSet) (bool, error) {
	if g.applyErr != nil {
		return false, g.applyErr
	}

	// stage first, commit only when nothing collides
	if ws.Drive != nil {
		key := driveKey(ws.Drive.StudentID, ws.Drive.CompanyName, ws.Drive.DriveDatetime)
		if _, ok := g.drives[key]; ok {
			return false, nil
		}
		g.drives[key] = *ws.Drive
	}
	if ws.Assignment != nil {
		classID := ws.Reschedule.RescheduleID
		if classID == 0 {
			classID = g.nextClassID
		}
		key := fmt.Sprintf("%d|%s", classID, ws.Assignment.StudentID)
		if g.assignments[key] {
			return false, nil
		}
		g.assignments[key] = true
	}
	if ws.Reschedule != nil && ws.Reschedule.RescheduleID == 0 {
		ws.Reschedule.RescheduleID = g.nextClassID
		g.nextClassID++
		g.reschedules = append(g.reschedules, *ws.Reschedule)
	}
	g.notified = append(g.notified, ws.Notifications...)
	if ws.Processed != nil {
		g.processed[ws.Processed.Fingerprint] = true
	}
	return true, nil
}

func testMessage(fingerprint string) models.RawMessage {
	return models.RawMessage{
		StudentID:   "stu-1",
		UID:         "42",
		Fingerprint: fingerprint,
		Subject:     "Interview invite",
	}
}

func TestReconcileInterviewCreatesDriveOnce(t *testing.T) {
	gw := newFakeGateway(nil)
	engine := NewEngine(gw, NewAllocator(60))

	event := models.ScheduleEvent{
		Kind:      models.EventInterview,
		Company:   "Acme",
		DriveTime: time.Date(2026, 9, 3, 10, 0, 0, 0, time.UTC),
	}

	out, err := engine.Reconcile(context.Background(), testMessage("fp-1"), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDriveCreated, out.Kind)
	assert.Len(t, gw.drives, 1)
	assert.Len(t, gw.notified, 1)
	assert.Contains(t, gw.notified[0].Message, "Upcoming Interview at Acme")

	// replaying the same event must not duplicate anything
	out, err = engine.Reconcile(context.Background(), testMessage("fp-2"), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out.Kind)
	assert.Len(t, gw.drives, 1)
	assert.Len(t, gw.notified, 1)
}

func TestReconcileNoEventOnlyRecordsFingerprint(t *testing.T) {
	gw := newFakeGateway(nil)
	engine := NewEngine(gw, NewAllocator(60))

	out, err := engine.Reconcile(context.Background(), testMessage("fp-3"), models.NoEvent())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoEvent, out.Kind)
	assert.True(t, gw.processed["fp-3"])
	assert.Empty(t, gw.drives)
	assert.Empty(t, gw.notified)
}

func TestReconcileRescheduleWriteSet(t *testing.T) {
	gw := newFakeGateway([]models.WeeklySlot{
		{SlotID: 1, Day: "Tuesday", StartTime: "10:00", EndTime: "11:00"},
	})
	engine := NewEngine(gw, NewAllocator(60))

	event := models.ScheduleEvent{
		Kind:    models.EventReschedule,
		Subject: "DBMS",
		Window:  models.TimeWindow{Day: "Tuesday", Start: "10:00", End: "11:00"},
	}

	out, err := engine.Reconcile(context.Background(), testMessage("fp-4"), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRescheduled, out.Kind)
	require.Len(t, gw.reschedules, 1)
	assert.Equal(t, "DBMS", gw.reschedules[0].SubjectID)
	assert.Equal(t, uint(1), gw.reschedules[0].SlotID)
	require.Len(t, gw.notified, 1)
	assert.Equal(t, "Your DBMS class has been rescheduled to Tuesday 10:00", gw.notified[0].Message)
	assert.True(t, gw.processed["fp-4"])
}

func TestReconcileRescheduleReusesPendingClass(t *testing.T) {
	gw := newFakeGateway([]models.WeeklySlot{
		{SlotID: 1, Day: "Tuesday", StartTime: "10:00", EndTime: "11:00"},
	})
	engine := NewEngine(gw, NewAllocator(60))

	event := models.ScheduleEvent{
		Kind:    models.EventReschedule,
		Subject: "DBMS",
		Window:  models.TimeWindow{Day: "Tuesday"},
	}

	_, err := engine.Reconcile(context.Background(), testMessage("fp-5"), event)
	require.NoError(t, err)

	// a second student joins the same pending class instead of creating another
	second := models.RawMessage{StudentID: "stu-2", Fingerprint: "fp-6"}
	out, err := engine.Reconcile(context.Background(), second, event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRescheduled, out.Kind)
	assert.Len(t, gw.reschedules, 1)
}

func TestReconcileRescheduleAvoidsRegularClasses(t *testing.T) {
	gw := newFakeGateway([]models.WeeklySlot{
		{SlotID: 1, Day: "Tuesday", StartTime: "10:00", EndTime: "11:00"},
		{SlotID: 2, Day: "Tuesday", StartTime: "14:00", EndTime: "15:00"},
	})
	// the student's enrolled timetable occupies the requested window
	gw.timetable = map[string][]models.WeeklySlot{
		"stu-1": {{Day: "Tuesday", StartTime: "10:00", EndTime: "11:00"}},
	}
	engine := NewEngine(gw, NewAllocator(60))

	event := models.ScheduleEvent{
		Kind:    models.EventReschedule,
		Subject: "Maths",
		Window:  models.TimeWindow{Day: "Tuesday", Start: "10:00", End: "11:00"},
	}

	out, err := engine.Reconcile(context.Background(), testMessage("fp-9"), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRescheduled, out.Kind)
	require.Len(t, gw.reschedules, 1)
	assert.Equal(t, uint(2), gw.reschedules[0].SlotID, "slot overlapping a regular class must be skipped")
}

func TestReconcileSlotExhaustion(t *testing.T) {
	gw := newFakeGateway(nil)
	engine := NewEngine(gw, NewAllocator(60))

	event := models.ScheduleEvent{
		Kind:    models.EventReschedule,
		Subject: "Maths",
		Window:  models.TimeWindow{Day: "Friday"},
	}

	out, err := engine.Reconcile(context.Background(), testMessage("fp-7"), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoSlot, out.Kind)
	require.Len(t, gw.notified, 1)
	assert.Equal(t, "slot_exhausted", gw.notified[0].Type)
	assert.True(t, gw.processed["fp-7"], "an exhausted reschedule is still settled")
}

func TestReconcilePropagatesApplyFailure(t *testing.T) {
	gw := newFakeGateway(nil)
	gw.applyErr = errors.New("connection reset")
	engine := NewEngine(gw, NewAllocator(60))

	event := models.ScheduleEvent{
		Kind:      models.EventInterview,
		Company:   "Acme",
		DriveTime: time.Now(),
	}

	_, err := engine.Reconcile(context.Background(), testMessage("fp-8"), event)
	require.Error(t, err)
	assert.Empty(t, gw.drives, "failed transaction leaves nothing behind")
	assert.False(t, gw.processed["fp-8"])
}
