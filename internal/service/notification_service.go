package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/NTA1210/learning-management-system-sub007/internal/models"
	"github.com/NTA1210/learning-management-system-sub007/pkg/config"
	appErrors "github.com/NTA1210/learning-management-system-sub007/pkg/errors"
	"github.com/NTA1210/learning-management-system-sub007/pkg/mailer"
)

type absenceCounter interface {
	CountAbsences(ctx context.Context, courseID, studentID string, until time.Time) (int, error)
}

type profileBatchReader interface {
	FindProfiles(ctx context.Context, ids []string) (map[string]models.UserProfile, error)
}

// MailSender is the external mail collaborator boundary. A delivery
// failure surfaces as an error on the one recipient, nothing more.
type MailSender interface {
	SendAbsenceAlert(ctx context.Context, mail mailer.AbsenceMail) (string, error)
}

// NotificationService counts absences and decides which absence mail to
// request from the mail collaborator.
type NotificationService struct {
	absences    absenceCounter
	courses     courseReader
	enrollments enrollmentReader
	profiles    profileBatchReader
	mail        MailSender
	logger      *zap.Logger
	cfg         config.AttendanceConfig
	metrics     *MetricsService
}

// NewNotificationService constructs the notification service.
func NewNotificationService(absences absenceCounter, courses courseReader, enrollments enrollmentReader, profiles profileBatchReader, mail MailSender, cfg config.AttendanceConfig, logger *zap.Logger, metrics *MetricsService) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxNotifyBatch <= 0 {
		cfg.MaxNotifyBatch = 100
	}
	if cfg.EscalateAbsenceCount <= 0 {
		cfg.EscalateAbsenceCount = 5
	}
	return &NotificationService{
		absences:    absences,
		courses:     courses,
		enrollments: enrollments,
		profiles:    profiles,
		mail:        mail,
		cfg:         cfg,
		logger:      logger,
		metrics:     metrics,
	}
}

// SendAbsenceNotifications mails each listed student an absence alert
// tiered by their absence count. One failed delivery is captured in that
// student's result entry and never blocks the others.
func (s *NotificationService) SendAbsenceNotifications(ctx context.Context, courseID string, studentIDs []string, actor models.Actor) (*models.NotificationResult, error) {
	if len(studentIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no student ids provided")
	}
	if len(studentIDs) > s.cfg.MaxNotifyBatch {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("cannot notify more than %d students at once", s.cfg.MaxNotifyBatch))
	}
	course, err := ensureManagePermission(ctx, s.courses, courseID, actor)
	if err != nil {
		return nil, err
	}

	unique := make([]string, 0, len(studentIDs))
	seen := make(map[string]struct{}, len(studentIDs))
	for _, id := range studentIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	approved, err := s.enrollments.ApprovedStudentIDs(ctx, courseID, unique)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify enrollment")
	}
	approvedSet := make(map[string]struct{}, len(approved))
	for _, id := range approved {
		approvedSet[id] = struct{}{}
	}
	profiles, err := s.profiles.FindProfiles(ctx, approved)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student profiles")
	}

	today := endOfDay(time.Now())
	result := &models.NotificationResult{Total: len(unique), Results: make([]models.NotificationEntry, 0, len(unique))}
	for _, studentID := range unique {
		entry := models.NotificationEntry{StudentID: studentID}
		if _, ok := approvedSet[studentID]; !ok {
			entry.Error = "student is not enrolled in this course"
			result.Failed++
			result.Results = append(result.Results, entry)
			continue
		}

		count, err := s.absences.CountAbsences(ctx, courseID, studentID, today)
		if err != nil {
			entry.Error = "failed to count absences"
			s.logger.Warn("absence count failed", zap.String("student_id", studentID), zap.Error(err))
			result.Failed++
			result.Results = append(result.Results, entry)
			continue
		}
		entry.AbsenceCount = count

		profile := profiles[studentID]
		message, err := s.mail.SendAbsenceAlert(ctx, mailer.AbsenceMail{
			To:           profile.Email,
			StudentName:  profile.DisplayName(),
			CourseName:   course.Name,
			AbsenceCount: count,
			Escalate:     count >= s.cfg.EscalateAbsenceCount,
		})
		if err != nil {
			entry.Error = err.Error()
			result.Failed++
		} else {
			entry.Success = true
			entry.Message = message
			result.Success++
		}
		result.Results = append(result.Results, entry)
	}
	s.metrics.AddNotifications(result.Success, result.Failed)
	return result, nil
}
