package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/NTA1210/learning-management-system-sub007/internal/models"
	"github.com/NTA1210/learning-management-system-sub007/pkg/config"
	appErrors "github.com/NTA1210/learning-management-system-sub007/pkg/errors"
)

type statsAttendanceReader interface {
	ListForStats(ctx context.Context, courseID, studentID string, from, to time.Time) ([]models.AttendanceRecord, error)
}

type profileReader interface {
	FindProfile(ctx context.Context, id string) (*models.UserProfile, error)
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// StatsService computes attendance rates, absence streaks and risk flags
// over the time-ordered record series of a course.
type StatsService struct {
	repo     statsAttendanceReader
	courses  courseReader
	profiles profileReader
	cache    statsCache
	logger   *zap.Logger
	cfg      config.AttendanceConfig
}

// NewStatsService constructs the stats service.
func NewStatsService(repo statsAttendanceReader, courses courseReader, profiles profileReader, cache statsCache, cfg config.AttendanceConfig, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HighAbsenceThreshold <= 0 {
		cfg.HighAbsenceThreshold = 20
	}
	if cfg.StatsCacheTTL <= 0 {
		cfg.StatsCacheTTL = 5 * time.Minute
	}
	return &StatsService{repo: repo, courses: courses, profiles: profiles, cache: cache, cfg: cfg, logger: logger}
}

func statsCachePattern(courseID string) string {
	return fmt.Sprintf("attendance:stats:%s:*", courseID)
}

func statsCacheKey(courseID string, from, to time.Time, threshold float64) string {
	return fmt.Sprintf("attendance:stats:%s:%s:%s:%.2f",
		courseID, from.Format("2006-01-02"), to.Format("2006-01-02"), threshold)
}

// CourseStats aggregates every student's attendance in the clamped window.
func (s *StatsService) CourseStats(ctx context.Context, courseID string, opts models.StatsOptions, actor models.Actor) (*models.CourseAttendanceStats, error) {
	course, err := ensureManagePermission(ctx, s.courses, courseID, actor)
	if err != nil {
		return nil, err
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = s.cfg.HighAbsenceThreshold
	}
	from, to, err := clampDateRangeToCourse(course, opts.From, opts.To)
	if err != nil {
		return nil, err
	}

	key := statsCacheKey(courseID, from, to, threshold)
	if s.cache != nil {
		var cached models.CourseAttendanceStats
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	records, err := s.repo.ListForStats(ctx, courseID, "", from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance records")
	}

	// Records arrive ordered by student then date; split into one
	// date-ascending series per student.
	var studentOrder []string
	byStudent := map[string][]models.AttendanceRecord{}
	for _, record := range records {
		if _, ok := byStudent[record.StudentID]; !ok {
			studentOrder = append(studentOrder, record.StudentID)
		}
		byStudent[record.StudentID] = append(byStudent[record.StudentID], record)
	}

	stats := &models.CourseAttendanceStats{
		CourseID:  courseID,
		From:      from,
		To:        to,
		Threshold: threshold,
		Students:  make([]models.StudentAttendanceStats, 0, len(studentOrder)),
	}
	var presentTotal, absentTotal int
	for _, studentID := range studentOrder {
		student := computeStudentStats(studentID, byStudent[studentID], threshold)
		presentTotal += student.PresentCount
		absentTotal += student.AbsentCount
		stats.Students = append(stats.Students, student)
		if student.Alerts.HighAbsence {
			stats.StudentsAtRisk = append(stats.StudentsAtRisk, student)
		}
	}
	stats.ClassAttendanceRate = percentage(presentTotal, presentTotal+absentTotal)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, stats, s.cfg.StatsCacheTTL); err != nil {
			s.logger.Warn("failed to cache course stats", zap.String("course_id", courseID), zap.Error(err))
		}
	}
	return stats, nil
}

// StudentStats applies the same rate and streak logic to one student and
// embeds the student's display profile. A failed profile lookup leaves
// the profile nil rather than failing the stats call.
func (s *StatsService) StudentStats(ctx context.Context, courseID, studentID string, opts models.StatsOptions, actor models.Actor) (*models.StudentAttendanceStats, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	course, err := ensureManagePermission(ctx, s.courses, courseID, actor)
	if err != nil {
		return nil, err
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = s.cfg.HighAbsenceThreshold
	}
	from, to, err := clampDateRangeToCourse(course, opts.From, opts.To)
	if err != nil {
		return nil, err
	}

	records, err := s.repo.ListForStats(ctx, courseID, studentID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance records")
	}
	stats := computeStudentStats(studentID, records, threshold)

	profile, err := s.profiles.FindProfile(ctx, studentID)
	if err != nil {
		s.logger.Warn("failed to resolve student profile", zap.String("student_id", studentID), zap.Error(err))
	} else {
		stats.Profile = profile
	}
	return &stats, nil
}

// computeStudentStats walks one student's date-ascending series. Rates
// use only marked records; the longest absent streak counts calendar-
// consecutive absent days and resets on any gap or non-absent status.
func computeStudentStats(studentID string, records []models.AttendanceRecord, threshold float64) models.StudentAttendanceStats {
	stats := models.StudentAttendanceStats{StudentID: studentID, TotalSessions: len(records)}

	streak := 0
	var prev *time.Time
	for _, record := range records {
		day := normalizeDateOnly(record.Date)
		switch record.Status {
		case models.AttendanceStatusPresent:
			stats.PresentCount++
			streak = 0
		case models.AttendanceStatusAbsent:
			stats.AbsentCount++
			if prev != nil && day.Equal(prev.Add(24*time.Hour)) {
				streak++
			} else {
				streak = 1
			}
			if streak > stats.LongestStreak {
				stats.LongestStreak = streak
			}
		default:
			streak = 0
		}
		prev = &day
	}

	stats.MarkedCount = stats.PresentCount + stats.AbsentCount
	stats.AttendanceRate = percentage(stats.PresentCount, stats.MarkedCount)
	stats.AbsentRate = percentage(stats.AbsentCount, stats.MarkedCount)
	stats.Alerts.HighAbsence = stats.AbsentRate >= threshold
	return stats
}

// percentage returns part/total*100 rounded to 2 decimals, 0 when total is 0.
func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*10000) / 100
}
