package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NTA1210/learning-management-system-sub007/internal/models"
	"github.com/NTA1210/learning-management-system-sub007/pkg/config"
	appErrors "github.com/NTA1210/learning-management-system-sub007/pkg/errors"
)

type mockStatsReader struct {
	records []models.AttendanceRecord
	calls   int
}

func (m *mockStatsReader) ListForStats(ctx context.Context, courseID, studentID string, from, to time.Time) ([]models.AttendanceRecord, error) {
	m.calls++
	if studentID == "" {
		return m.records, nil
	}
	var out []models.AttendanceRecord
	for _, r := range m.records {
		if r.StudentID == studentID {
			out = append(out, r)
		}
	}
	return out, nil
}

type mockProfileReader struct {
	profiles map[string]*models.UserProfile
	err      error
}

func (m *mockProfileReader) FindProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	if m.err != nil {
		return nil, m.err
	}
	if p, ok := m.profiles[id]; ok {
		return p, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
}

type mockStatsCache struct {
	stored map[string]interface{}
	hit    *models.CourseAttendanceStats
}

func (m *mockStatsCache) Get(ctx context.Context, key string, dest interface{}) error {
	if m.hit != nil {
		*dest.(*models.CourseAttendanceStats) = *m.hit
		return nil
	}
	return appErrors.ErrCacheMiss
}

func (m *mockStatsCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.stored == nil {
		m.stored = make(map[string]interface{})
	}
	m.stored[key] = value
	return nil
}

func day(offset int) time.Time {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, offset)
}

func statsRecord(studentID string, date time.Time, status models.AttendanceStatus) models.AttendanceRecord {
	return models.AttendanceRecord{CourseID: "c1", StudentID: studentID, Date: date, Status: status}
}

func newStatsService(repo *mockStatsReader, courses *mockCourseReader, profiles *mockProfileReader, cache *mockStatsCache) *StatsService {
	var c statsCache
	if cache != nil {
		c = cache
	}
	return NewStatsService(repo, courses, profiles, c, config.AttendanceConfig{}, zap.NewNop())
}

func TestComputeStudentStatsRatesAndStreak(t *testing.T) {
	records := []models.AttendanceRecord{
		statsRecord("s1", day(0), models.AttendanceStatusAbsent),
		statsRecord("s1", day(1), models.AttendanceStatusAbsent),
		statsRecord("s1", day(2), models.AttendanceStatusPresent),
	}
	stats := computeStudentStats("s1", records, 20)

	assert.Equal(t, 3, stats.TotalSessions)
	assert.Equal(t, 3, stats.MarkedCount)
	assert.Equal(t, 1, stats.PresentCount)
	assert.Equal(t, 2, stats.AbsentCount)
	assert.Equal(t, 2, stats.LongestStreak)
	assert.InDelta(t, 33.33, stats.AttendanceRate, 0.001)
	assert.InDelta(t, 66.67, stats.AbsentRate, 0.001)
	assert.InDelta(t, 100, stats.AttendanceRate+stats.AbsentRate, 0.011)
	assert.True(t, stats.Alerts.HighAbsence)
}

func TestComputeStudentStatsGapBreaksStreak(t *testing.T) {
	records := []models.AttendanceRecord{
		statsRecord("s1", day(0), models.AttendanceStatusAbsent),
		statsRecord("s1", day(2), models.AttendanceStatusAbsent),
	}
	stats := computeStudentStats("s1", records, 20)

	assert.Equal(t, 2, stats.AbsentCount)
	assert.Equal(t, 1, stats.LongestStreak)
}

func TestComputeStudentStatsPresentResetsStreak(t *testing.T) {
	records := []models.AttendanceRecord{
		statsRecord("s1", day(0), models.AttendanceStatusAbsent),
		statsRecord("s1", day(1), models.AttendanceStatusPresent),
		statsRecord("s1", day(2), models.AttendanceStatusAbsent),
		statsRecord("s1", day(3), models.AttendanceStatusAbsent),
		statsRecord("s1", day(4), models.AttendanceStatusAbsent),
	}
	stats := computeStudentStats("s1", records, 20)

	assert.Equal(t, 3, stats.LongestStreak)
}

func TestComputeStudentStatsExcludesUnmarked(t *testing.T) {
	records := []models.AttendanceRecord{
		statsRecord("s1", day(0), models.AttendanceStatusNotYet),
		statsRecord("s1", day(1), models.AttendanceStatusNotYet),
	}
	stats := computeStudentStats("s1", records, 20)

	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 0, stats.MarkedCount)
	assert.Zero(t, stats.AttendanceRate)
	assert.Zero(t, stats.AbsentRate)
	assert.False(t, stats.Alerts.HighAbsence)
}

func TestComputeStudentStatsUnmarkedBreaksStreak(t *testing.T) {
	records := []models.AttendanceRecord{
		statsRecord("s1", day(0), models.AttendanceStatusAbsent),
		statsRecord("s1", day(1), models.AttendanceStatusNotYet),
		statsRecord("s1", day(2), models.AttendanceStatusAbsent),
	}
	stats := computeStudentStats("s1", records, 20)

	assert.Equal(t, 1, stats.LongestStreak)
}

func TestStatsServiceCourseStats(t *testing.T) {
	repo := &mockStatsReader{records: []models.AttendanceRecord{
		statsRecord("s1", day(0), models.AttendanceStatusPresent),
		statsRecord("s1", day(1), models.AttendanceStatusPresent),
		statsRecord("s2", day(0), models.AttendanceStatusAbsent),
		statsRecord("s2", day(1), models.AttendanceStatusPresent),
	}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": openCourse("c1", "t1")}}
	cache := &mockStatsCache{}
	svc := newStatsService(repo, courses, &mockProfileReader{}, cache)

	stats, err := svc.CourseStats(context.Background(), "c1", models.StatsOptions{}, models.Actor{ID: "t1", Role: models.RoleTeacher})
	require.NoError(t, err)
	require.Len(t, stats.Students, 2)
	assert.Equal(t, "s1", stats.Students[0].StudentID)
	assert.InDelta(t, 100, stats.Students[0].AttendanceRate, 0.001)
	assert.InDelta(t, 50, stats.Students[1].AbsentRate, 0.001)
	assert.InDelta(t, 75, stats.ClassAttendanceRate, 0.001)

	// s2's absent rate of 50% clears the default 20% threshold.
	require.Len(t, stats.StudentsAtRisk, 1)
	assert.Equal(t, "s2", stats.StudentsAtRisk[0].StudentID)
	assert.Equal(t, 20.0, stats.Threshold)
	assert.Len(t, cache.stored, 1)
}

func TestStatsServiceCourseStatsCustomThreshold(t *testing.T) {
	repo := &mockStatsReader{records: []models.AttendanceRecord{
		statsRecord("s2", day(0), models.AttendanceStatusAbsent),
		statsRecord("s2", day(1), models.AttendanceStatusPresent),
	}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": openCourse("c1", "t1")}}
	svc := newStatsService(repo, courses, &mockProfileReader{}, nil)

	stats, err := svc.CourseStats(context.Background(), "c1", models.StatsOptions{Threshold: 60}, models.Actor{ID: "a1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Empty(t, stats.StudentsAtRisk)
}

func TestStatsServiceCourseStatsServedFromCache(t *testing.T) {
	repo := &mockStatsReader{}
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": openCourse("c1", "t1")}}
	cached := &models.CourseAttendanceStats{CourseID: "c1", ClassAttendanceRate: 88}
	svc := newStatsService(repo, courses, &mockProfileReader{}, &mockStatsCache{hit: cached})

	stats, err := svc.CourseStats(context.Background(), "c1", models.StatsOptions{}, models.Actor{ID: "t1", Role: models.RoleTeacher})
	require.NoError(t, err)
	assert.InDelta(t, 88, stats.ClassAttendanceRate, 0.001)
	assert.Zero(t, repo.calls)
}

func TestStatsServiceCourseStatsForbiddenForStudent(t *testing.T) {
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": openCourse("c1", "t1")}}
	svc := newStatsService(&mockStatsReader{}, courses, &mockProfileReader{}, nil)

	_, err := svc.CourseStats(context.Background(), "c1", models.StatsOptions{}, models.Actor{ID: "s1", Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestStatsServiceCourseStatsUnknownCourse(t *testing.T) {
	svc := newStatsService(&mockStatsReader{}, &mockCourseReader{}, &mockProfileReader{}, nil)

	_, err := svc.CourseStats(context.Background(), "missing", models.StatsOptions{}, models.Actor{ID: "a1", Role: models.RoleAdmin})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestStatsServiceStudentStats(t *testing.T) {
	repo := &mockStatsReader{records: []models.AttendanceRecord{
		statsRecord("s1", day(0), models.AttendanceStatusAbsent),
		statsRecord("s1", day(1), models.AttendanceStatusAbsent),
	}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": openCourse("c1", "t1")}}
	profiles := &mockProfileReader{profiles: map[string]*models.UserProfile{
		"s1": {ID: "s1", Username: "s1user", FullName: "Student One", Email: "s1@example.com"},
	}}
	svc := newStatsService(repo, courses, profiles, nil)

	stats, err := svc.StudentStats(context.Background(), "c1", "s1", models.StatsOptions{}, models.Actor{ID: "t1", Role: models.RoleTeacher})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.LongestStreak)
	require.NotNil(t, stats.Profile)
	assert.Equal(t, "Student One", stats.Profile.DisplayName())
}

func TestStatsServiceStudentStatsToleratesProfileFailure(t *testing.T) {
	repo := &mockStatsReader{records: []models.AttendanceRecord{
		statsRecord("s1", day(0), models.AttendanceStatusPresent),
	}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": openCourse("c1", "t1")}}
	profiles := &mockProfileReader{err: appErrors.Clone(appErrors.ErrInternal, "users unavailable")}
	svc := newStatsService(repo, courses, profiles, nil)

	stats, err := svc.StudentStats(context.Background(), "c1", "s1", models.StatsOptions{}, models.Actor{ID: "a1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Nil(t, stats.Profile)
	assert.Equal(t, 1, stats.PresentCount)
}

func TestPercentage(t *testing.T) {
	assert.Zero(t, percentage(3, 0))
	assert.InDelta(t, 100, percentage(5, 5), 0.001)
	assert.InDelta(t, 66.67, percentage(2, 3), 0.001)
}
