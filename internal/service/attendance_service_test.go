package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NTA1210/learning-management-system-sub007/internal/models"
	"github.com/NTA1210/learning-management-system-sub007/pkg/config"
	appErrors "github.com/NTA1210/learning-management-system-sub007/pkg/errors"
)

type mockAttendanceRepo struct {
	records    map[string]models.AttendanceRecord
	upserted   []models.AttendanceRecord
	upsertErrs []string
	details    []models.AttendanceDetail
	total      int
	summary    models.StatusSummary
	deletedIDs []string
	lastFilter models.AttendanceFilter
}

func (m *mockAttendanceRepo) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceDetail, int, error) {
	m.lastFilter = filter
	return m.details, m.total, nil
}

func (m *mockAttendanceRepo) ListAllDetails(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceDetail, error) {
	m.lastFilter = filter
	return m.details, nil
}

func (m *mockAttendanceRepo) StatusSummary(ctx context.Context, filter models.AttendanceFilter) (*models.StatusSummary, error) {
	s := m.summary
	return &s, nil
}

func (m *mockAttendanceRepo) BulkUpsert(ctx context.Context, records []models.AttendanceRecord) []string {
	m.upserted = append(m.upserted, records...)
	return m.upsertErrs
}

func (m *mockAttendanceRepo) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	if r, ok := m.records[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAttendanceRepo) FindByIDs(ctx context.Context, ids []string) ([]models.AttendanceRecord, error) {
	var out []models.AttendanceRecord
	for _, id := range ids {
		if r, ok := m.records[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockAttendanceRepo) UpdateStatus(ctx context.Context, id string, status models.AttendanceStatus, markedBy string) (*models.AttendanceRecord, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	r.Status = status
	r.MarkedBy = markedBy
	m.records[id] = r
	return &r, nil
}

func (m *mockAttendanceRepo) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	count := 0
	for _, id := range ids {
		if _, ok := m.records[id]; ok {
			delete(m.records, id)
			count++
		}
	}
	m.deletedIDs = append(m.deletedIDs, ids...)
	return count, nil
}

type mockCourseReader struct {
	courses map[string]*models.Course
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type mockEnrollmentReader struct {
	approved map[string]bool
}

func (m *mockEnrollmentReader) ApprovedStudentIDs(ctx context.Context, courseID string, studentIDs []string) ([]string, error) {
	var out []string
	for _, id := range studentIDs {
		if m.approved[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

type mockInvalidator struct {
	patterns []string
}

func (m *mockInvalidator) DeleteByPattern(ctx context.Context, pattern string) error {
	m.patterns = append(m.patterns, pattern)
	return nil
}

func openCourse(id string, teacherIDs ...string) *models.Course {
	now := time.Now().UTC()
	return &models.Course{
		ID:         id,
		Name:       "Algorithms",
		StartDate:  now.AddDate(0, 0, -30),
		EndDate:    now.AddDate(0, 0, 30),
		TeacherIDs: teacherIDs,
	}
}

func newAttendanceService(repo *mockAttendanceRepo, courses *mockCourseReader, enrollments *mockEnrollmentReader, cache *mockInvalidator) *AttendanceService {
	return NewAttendanceService(repo, courses, enrollments, cache, config.AttendanceConfig{}, validator.New(), zap.NewNop(), nil)
}

func TestAttendanceServiceListForbiddenForStudent(t *testing.T) {
	svc := newAttendanceService(&mockAttendanceRepo{}, &mockCourseReader{}, &mockEnrollmentReader{}, nil)

	_, _, err := svc.List(context.Background(), ListAttendanceRequest{CourseID: "c1"}, models.Actor{ID: "s1", Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceListRequiresCourseForTeacher(t *testing.T) {
	svc := newAttendanceService(&mockAttendanceRepo{}, &mockCourseReader{}, &mockEnrollmentReader{}, nil)

	_, _, err := svc.List(context.Background(), ListAttendanceRequest{}, models.Actor{ID: "t1", Role: models.RoleTeacher})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceListClampsRangeToCourse(t *testing.T) {
	repo := &mockAttendanceRepo{}
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": openCourse("c1", "t1")}}
	svc := newAttendanceService(repo, courses, &mockEnrollmentReader{}, nil)

	wayBack := time.Now().UTC().AddDate(-1, 0, 0)
	_, _, err := svc.List(context.Background(), ListAttendanceRequest{CourseID: "c1", DateFrom: &wayBack}, models.Actor{ID: "t1", Role: models.RoleTeacher})
	require.NoError(t, err)
	require.NotNil(t, repo.lastFilter.DateFrom)
	assert.Equal(t, normalizeDateOnly(courses.courses["c1"].StartDate), *repo.lastFilter.DateFrom)
}

func TestAttendanceServiceListNotTaughtCourse(t *testing.T) {
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": openCourse("c1", "other")}}
	svc := newAttendanceService(&mockAttendanceRepo{}, courses, &mockEnrollmentReader{}, nil)

	_, _, err := svc.List(context.Background(), ListAttendanceRequest{CourseID: "c1"}, models.Actor{ID: "t1", Role: models.RoleTeacher})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceStudentHistoryOwnOnly(t *testing.T) {
	repo := &mockAttendanceRepo{}
	svc := newAttendanceService(repo, &mockCourseReader{}, &mockEnrollmentReader{}, nil)

	_, _, err := svc.StudentHistory(context.Background(), "s2", ListAttendanceRequest{}, models.Actor{ID: "s1", Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, _, err = svc.StudentHistory(context.Background(), "s1", ListAttendanceRequest{}, models.Actor{ID: "s1", Role: models.RoleStudent})
	require.NoError(t, err)
	assert.Equal(t, "s1", repo.lastFilter.StudentID)
}

func TestAttendanceServiceSelfHistoryForcesOwnScope(t *testing.T) {
	repo := &mockAttendanceRepo{}
	svc := newAttendanceService(repo, &mockCourseReader{}, &mockEnrollmentReader{}, nil)

	// The self path ignores any student filter smuggled into the request.
	_, _, err := svc.SelfHistory(context.Background(), "s1", ListAttendanceRequest{StudentID: "s2"})
	require.NoError(t, err)
	assert.Equal(t, "s1", repo.lastFilter.StudentID)
}

func TestAttendanceServiceMark(t *testing.T) {
	repo := &mockAttendanceRepo{summary: models.StatusSummary{Present: 1, Absent: 1, Total: 2}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": openCourse("c1", "t1")}}
	enrollments := &mockEnrollmentReader{approved: map[string]bool{"s1": true, "s2": true}}
	cache := &mockInvalidator{}
	svc := newAttendanceService(repo, courses, enrollments, cache)

	today := time.Now().UTC().Format("2006-01-02")
	result, err := svc.Mark(context.Background(), MarkAttendanceRequest{
		CourseID: "c1",
		Date:     today,
		Entries: []MarkEntry{
			{StudentID: "s1", Status: "present"},
			{StudentID: "s2", Status: "absent"},
			{StudentID: "s1", Status: "absent"}, // duplicate, last status wins
		},
	}, models.Actor{ID: "t1", Role: models.RoleTeacher})
	require.NoError(t, err)
	require.NotNil(t, result)

	require.Len(t, repo.upserted, 2)
	assert.Equal(t, "s1", repo.upserted[0].StudentID)
	assert.Equal(t, models.AttendanceStatusAbsent, repo.upserted[0].Status)
	assert.Equal(t, "s2", repo.upserted[1].StudentID)
	assert.Equal(t, "t1", repo.upserted[0].MarkedBy)
	assert.Equal(t, normalizeDateOnly(time.Now()), repo.upserted[0].Date)
	assert.Equal(t, 2, result.Summary.Total)
	assert.Contains(t, cache.patterns, statsCachePattern("c1"))
}

func TestAttendanceServiceMarkRejectsFutureDate(t *testing.T) {
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": openCourse("c1", "t1")}}
	svc := newAttendanceService(&mockAttendanceRepo{}, courses, &mockEnrollmentReader{}, nil)

	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	_, err := svc.Mark(context.Background(), MarkAttendanceRequest{
		CourseID: "c1",
		Date:     tomorrow,
		Entries:  []MarkEntry{{StudentID: "s1", Status: "present"}},
	}, models.Actor{ID: "t1", Role: models.RoleTeacher})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceMarkRejectsNotYetStatus(t *testing.T) {
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": openCourse("c1", "t1")}}
	svc := newAttendanceService(&mockAttendanceRepo{}, courses, &mockEnrollmentReader{}, nil)

	today := time.Now().UTC().Format("2006-01-02")
	_, err := svc.Mark(context.Background(), MarkAttendanceRequest{
		CourseID: "c1",
		Date:     today,
		Entries:  []MarkEntry{{StudentID: "s1", Status: "not-yet"}},
	}, models.Actor{ID: "t1", Role: models.RoleTeacher})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceMarkRejectsUnenrolledStudents(t *testing.T) {
	repo := &mockAttendanceRepo{}
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": openCourse("c1", "t1")}}
	enrollments := &mockEnrollmentReader{approved: map[string]bool{"s1": true}}
	svc := newAttendanceService(repo, courses, enrollments, nil)

	today := time.Now().UTC().Format("2006-01-02")
	_, err := svc.Mark(context.Background(), MarkAttendanceRequest{
		CourseID: "c1",
		Date:     today,
		Entries: []MarkEntry{
			{StudentID: "s1", Status: "present"},
			{StudentID: "s9", Status: "absent"},
		},
	}, models.Actor{ID: "t1", Role: models.RoleTeacher})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "s9")
	assert.Empty(t, repo.upserted)
}

func TestAttendanceServiceMarkOutsideCourseSchedule(t *testing.T) {
	now := time.Now().UTC()
	course := &models.Course{ID: "c1", StartDate: now.AddDate(0, 0, -60), EndDate: now.AddDate(0, 0, -30), TeacherIDs: []string{"t1"}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": course}}
	svc := newAttendanceService(&mockAttendanceRepo{}, courses, &mockEnrollmentReader{approved: map[string]bool{"s1": true}}, nil)

	today := now.Format("2006-01-02")
	_, err := svc.Mark(context.Background(), MarkAttendanceRequest{
		CourseID: "c1",
		Date:     today,
		Entries:  []MarkEntry{{StudentID: "s1", Status: "present"}},
	}, models.Actor{ID: "t1", Role: models.RoleTeacher})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceUpdateTeacherEditWindow(t *testing.T) {
	recentID := uuid.New().String()
	staleID := uuid.New().String()
	repo := &mockAttendanceRepo{records: map[string]models.AttendanceRecord{
		recentID: {ID: recentID, CourseID: "c1", StudentID: "s1", Status: models.AttendanceStatusPresent, CreatedAt: time.Now().Add(-11 * time.Hour)},
		staleID:  {ID: staleID, CourseID: "c1", StudentID: "s2", Status: models.AttendanceStatusPresent, CreatedAt: time.Now().Add(-13 * time.Hour)},
	}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": openCourse("c1", "t1")}}
	svc := newAttendanceService(repo, courses, &mockEnrollmentReader{}, &mockInvalidator{})
	teacher := models.Actor{ID: "t1", Role: models.RoleTeacher}

	result, err := svc.Update(context.Background(), UpdateAttendanceRequest{IDs: []string{recentID}, Status: "absent"}, teacher)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, models.AttendanceStatusAbsent, repo.records[recentID].Status)

	_, err = svc.Update(context.Background(), UpdateAttendanceRequest{IDs: []string{staleID}, Status: "absent"}, teacher)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceUpdateAdminIgnoresEditWindow(t *testing.T) {
	staleID := uuid.New().String()
	repo := &mockAttendanceRepo{records: map[string]models.AttendanceRecord{
		staleID: {ID: staleID, CourseID: "c1", StudentID: "s1", Status: models.AttendanceStatusPresent, CreatedAt: time.Now().Add(-48 * time.Hour)},
	}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": openCourse("c1", "t1")}}
	svc := newAttendanceService(repo, courses, &mockEnrollmentReader{}, &mockInvalidator{})

	result, err := svc.Update(context.Background(), UpdateAttendanceRequest{IDs: []string{staleID}, Status: "absent"}, models.Actor{ID: "a1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
}

func TestAttendanceServiceUpdateBatchCollectsErrors(t *testing.T) {
	goodID := uuid.New().String()
	missingID := uuid.New().String()
	repo := &mockAttendanceRepo{records: map[string]models.AttendanceRecord{
		goodID: {ID: goodID, CourseID: "c1", StudentID: "s1", Status: models.AttendanceStatusPresent, CreatedAt: time.Now()},
	}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": openCourse("c1", "t1")}}
	svc := newAttendanceService(repo, courses, &mockEnrollmentReader{}, &mockInvalidator{})

	result, err := svc.Update(context.Background(), UpdateAttendanceRequest{IDs: []string{goodID, missingID}, Status: "absent"}, models.Actor{ID: "a1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, []string{goodID}, result.UpdatedIDs)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], missingID)
}

func TestAttendanceServiceUpdateForbiddenForStudent(t *testing.T) {
	svc := newAttendanceService(&mockAttendanceRepo{}, &mockCourseReader{}, &mockEnrollmentReader{}, nil)

	_, err := svc.Update(context.Background(), UpdateAttendanceRequest{IDs: []string{uuid.New().String()}, Status: "present"}, models.Actor{ID: "s1", Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceDeleteOneTeacherSameDayOnly(t *testing.T) {
	todayID := uuid.New().String()
	oldID := uuid.New().String()
	repo := &mockAttendanceRepo{records: map[string]models.AttendanceRecord{
		todayID: {ID: todayID, CourseID: "c1", StudentID: "s1", Date: normalizeDateOnly(time.Now()), CreatedAt: time.Now()},
		oldID:   {ID: oldID, CourseID: "c1", StudentID: "s2", Date: normalizeDateOnly(time.Now().AddDate(0, 0, -1)), CreatedAt: time.Now().AddDate(0, 0, -1)},
	}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": openCourse("c1", "t1")}}
	svc := newAttendanceService(repo, courses, &mockEnrollmentReader{}, &mockInvalidator{})
	teacher := models.Actor{ID: "t1", Role: models.RoleTeacher}

	_, err := svc.DeleteOne(context.Background(), oldID, teacher)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	result, err := svc.DeleteOne(context.Background(), todayID, teacher)
	require.NoError(t, err)
	assert.True(t, result.Deleted)
	require.NotNil(t, result.Record)
	assert.Equal(t, todayID, result.Record.ID)
}

func TestAttendanceServiceDeleteOneNotFound(t *testing.T) {
	svc := newAttendanceService(&mockAttendanceRepo{records: map[string]models.AttendanceRecord{}}, &mockCourseReader{}, &mockEnrollmentReader{}, nil)

	_, err := svc.DeleteOne(context.Background(), uuid.New().String(), models.Actor{ID: "a1", Role: models.RoleAdmin})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceDeleteManyPartialFailure(t *testing.T) {
	taughtID := uuid.New().String()
	foreignID := uuid.New().String()
	today := normalizeDateOnly(time.Now())
	repo := &mockAttendanceRepo{records: map[string]models.AttendanceRecord{
		taughtID:  {ID: taughtID, CourseID: "c1", StudentID: "s1", Date: today},
		foreignID: {ID: foreignID, CourseID: "c2", StudentID: "s2", Date: today},
	}}
	courses := &mockCourseReader{courses: map[string]*models.Course{
		"c1": openCourse("c1", "t1"),
		"c2": openCourse("c2", "other"),
	}}
	cache := &mockInvalidator{}
	svc := newAttendanceService(repo, courses, &mockEnrollmentReader{}, cache)

	result, err := svc.DeleteMany(context.Background(), []string{taughtID, foreignID}, models.Actor{ID: "t1", Role: models.RoleTeacher})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, []string{taughtID}, result.DeletedIDs)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], foreignID)
	assert.Equal(t, []string{statsCachePattern("c1")}, cache.patterns)
}

func TestAttendanceServiceDeleteManyCapsBatchSize(t *testing.T) {
	svc := newAttendanceService(&mockAttendanceRepo{}, &mockCourseReader{}, &mockEnrollmentReader{}, nil)

	ids := make([]string, 101)
	for i := range ids {
		ids[i] = uuid.New().String()
	}
	_, err := svc.DeleteMany(context.Background(), ids, models.Actor{ID: "a1", Role: models.RoleAdmin})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceDeleteManyRejectsMissingRecords(t *testing.T) {
	knownID := uuid.New().String()
	repo := &mockAttendanceRepo{records: map[string]models.AttendanceRecord{
		knownID: {ID: knownID, CourseID: "c1", StudentID: "s1", Date: normalizeDateOnly(time.Now())},
	}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": openCourse("c1", "t1")}}
	svc := newAttendanceService(repo, courses, &mockEnrollmentReader{}, nil)

	_, err := svc.DeleteMany(context.Background(), []string{knownID, uuid.New().String()}, models.Actor{ID: "a1", Role: models.RoleAdmin})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deletedIDs)
}

func TestAttendanceServiceDeleteManyRejectsMalformedID(t *testing.T) {
	svc := newAttendanceService(&mockAttendanceRepo{}, &mockCourseReader{}, &mockEnrollmentReader{}, nil)

	_, err := svc.DeleteMany(context.Background(), []string{"not-a-uuid"}, models.Actor{ID: "a1", Role: models.RoleAdmin})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, fmt.Sprintf("invalid attendance id: %s", "not-a-uuid"), appErr.Message)
}
