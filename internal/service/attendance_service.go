package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NTA1210/learning-management-system-sub007/internal/models"
	"github.com/NTA1210/learning-management-system-sub007/pkg/config"
	appErrors "github.com/NTA1210/learning-management-system-sub007/pkg/errors"
)

type attendanceRepository interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceDetail, int, error)
	ListAllDetails(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceDetail, error)
	StatusSummary(ctx context.Context, filter models.AttendanceFilter) (*models.StatusSummary, error)
	BulkUpsert(ctx context.Context, records []models.AttendanceRecord) []string
	FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.AttendanceRecord, error)
	UpdateStatus(ctx context.Context, id string, status models.AttendanceStatus, markedBy string) (*models.AttendanceRecord, error)
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
}

type enrollmentReader interface {
	ApprovedStudentIDs(ctx context.Context, courseID string, studentIDs []string) ([]string, error)
}

type statsInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// AttendanceService coordinates attendance queries and bulk mutations.
type AttendanceService struct {
	repo        attendanceRepository
	courses     courseReader
	enrollments enrollmentReader
	cache       statsInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         config.AttendanceConfig
	metrics     *MetricsService
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(repo attendanceRepository, courses courseReader, enrollments enrollmentReader, cache statsInvalidator, cfg config.AttendanceConfig, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxEditWindow <= 0 {
		cfg.MaxEditWindow = 12 * time.Hour
	}
	if cfg.MaxBulkDelete <= 0 {
		cfg.MaxBulkDelete = 100
	}
	svc := &AttendanceService{
		repo:        repo,
		courses:     courses,
		enrollments: enrollments,
		cache:       cache,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		metrics:     metrics,
	}
	svc.validator.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(fl.Field().String()).Valid()
	})
	return svc
}

// ListAttendanceRequest carries filters for listing and export.
type ListAttendanceRequest struct {
	CourseID  string     `json:"course_id"`
	StudentID string     `json:"student_id"`
	TeacherID string     `json:"teacher_id"`
	Status    *string    `json:"status" validate:"omitempty,attendance_status"`
	DateFrom  *time.Time `json:"date_from"`
	DateTo    *time.Time `json:"date_to"`
	Page      int        `json:"page"`
	PageSize  int        `json:"page_size"`
	SortBy    string     `json:"sort_by"`
	SortOrder string     `json:"sort_order"`
}

func (req ListAttendanceRequest) toFilter() models.AttendanceFilter {
	filter := models.AttendanceFilter{
		CourseID:  req.CourseID,
		StudentID: req.StudentID,
		MarkedBy:  req.TeacherID,
		Page:      req.Page,
		PageSize:  req.PageSize,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	}
	if req.Status != nil {
		st := models.AttendanceStatus(*req.Status)
		filter.Status = &st
	}
	return filter
}

// resolveManagedFilter validates a management-scoped query and applies
// the role rules: students are always rejected, non-admins must scope to
// a course, and a course-bound date range takes precedence over the
// caller-supplied bounds.
func (s *AttendanceService) resolveManagedFilter(ctx context.Context, req ListAttendanceRequest, actor models.Actor) (models.AttendanceFilter, error) {
	var zero models.AttendanceFilter
	if err := s.validator.Struct(req); err != nil {
		return zero, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid filter")
	}
	if actor.Role == models.RoleStudent {
		return zero, appErrors.Clone(appErrors.ErrForbidden, "students cannot list attendance")
	}
	if req.CourseID == "" && actor.Role != models.RoleAdmin {
		return zero, appErrors.Clone(appErrors.ErrValidation, "course id is required")
	}

	filter := req.toFilter()
	if req.CourseID != "" {
		course, err := ensureManagePermission(ctx, s.courses, req.CourseID, actor)
		if err != nil {
			return zero, err
		}
		from, to, err := clampDateRangeToCourse(course, req.DateFrom, req.DateTo)
		if err != nil {
			return zero, err
		}
		filter.DateFrom, filter.DateTo = &from, &to
	} else {
		filter.DateFrom, filter.DateTo = buildDateRangeFilter(req.DateFrom, req.DateTo)
	}
	return filter, nil
}

// List returns paginated attendance records. Admin and teacher only.
func (s *AttendanceService) List(ctx context.Context, req ListAttendanceRequest, actor models.Actor) ([]models.AttendanceDetail, *models.Pagination, error) {
	filter, err := s.resolveManagedFilter(ctx, req, actor)
	if err != nil {
		return nil, nil, err
	}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return rows, paginationFor(filter, total), nil
}

// StudentHistory returns one student's attendance. Students may only read
// their own history, teachers must scope to a course they teach, admins
// may read anything.
func (s *AttendanceService) StudentHistory(ctx context.Context, studentID string, req ListAttendanceRequest, actor models.Actor) ([]models.AttendanceDetail, *models.Pagination, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid filter")
	}
	if studentID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}

	filter := req.toFilter()
	filter.StudentID = studentID

	switch actor.Role {
	case models.RoleStudent:
		if studentID != actor.ID {
			return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "students may only view their own attendance")
		}
		filter.DateFrom, filter.DateTo = buildDateRangeFilter(req.DateFrom, req.DateTo)
	case models.RoleTeacher:
		if req.CourseID == "" {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "course id is required")
		}
		course, err := ensureManagePermission(ctx, s.courses, req.CourseID, actor)
		if err != nil {
			return nil, nil, err
		}
		from, to, err := clampDateRangeToCourse(course, req.DateFrom, req.DateTo)
		if err != nil {
			return nil, nil, err
		}
		filter.DateFrom, filter.DateTo = &from, &to
	case models.RoleAdmin:
		if req.CourseID != "" {
			course, err := ensureManagePermission(ctx, s.courses, req.CourseID, actor)
			if err != nil {
				return nil, nil, err
			}
			from, to, err := clampDateRangeToCourse(course, req.DateFrom, req.DateTo)
			if err != nil {
				return nil, nil, err
			}
			filter.DateFrom, filter.DateTo = &from, &to
		} else {
			filter.DateFrom, filter.DateTo = buildDateRangeFilter(req.DateFrom, req.DateTo)
		}
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "unknown role")
	}

	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance history")
	}
	return rows, paginationFor(filter, total), nil
}

// SelfHistory is the narrow self-access path: it forces the student id to
// the caller and the role to student, bypassing the management gate.
func (s *AttendanceService) SelfHistory(ctx context.Context, actorID string, req ListAttendanceRequest) ([]models.AttendanceDetail, *models.Pagination, error) {
	return s.StudentHistory(ctx, actorID, req, models.Actor{ID: actorID, Role: models.RoleStudent})
}

// MarkEntry is one (student, status) pair in a mark call.
type MarkEntry struct {
	StudentID string `json:"student_id" validate:"required"`
	Status    string `json:"status" validate:"required"`
}

// MarkAttendanceRequest marks one date for a list of students in a course.
type MarkAttendanceRequest struct {
	CourseID string      `json:"course_id" validate:"required"`
	Date     string      `json:"date" validate:"required"`
	Entries  []MarkEntry `json:"entries" validate:"required,min=1,dive"`
}

// Mark upserts one record per entry keyed by (course, student, date) and
// returns the freshly re-read records with a status distribution.
func (s *AttendanceService) Mark(ctx context.Context, req MarkAttendanceRequest, actor models.Actor) (*models.MarkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	for _, entry := range req.Entries {
		status := models.AttendanceStatus(entry.Status)
		if status != models.AttendanceStatusPresent && status != models.AttendanceStatusAbsent {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("status %q is not allowed, use present or absent", entry.Status))
		}
	}

	parsed, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
	}
	day := normalizeDateOnly(parsed)
	if daysDiffFromToday(day) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot mark attendance for a future date")
	}

	course, err := ensureManagePermission(ctx, s.courses, req.CourseID, actor)
	if err != nil {
		return nil, err
	}
	if err := assertDateWithinCourseSchedule(course, day); err != nil {
		return nil, err
	}

	// Duplicate students collapse to their last entry before the
	// membership check; one upsert per student keeps the triple unique.
	order := make([]string, 0, len(req.Entries))
	statusByStudent := make(map[string]models.AttendanceStatus, len(req.Entries))
	for _, entry := range req.Entries {
		if _, seen := statusByStudent[entry.StudentID]; !seen {
			order = append(order, entry.StudentID)
		}
		statusByStudent[entry.StudentID] = models.AttendanceStatus(entry.Status)
	}

	approved, err := s.enrollments.ApprovedStudentIDs(ctx, req.CourseID, order)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify enrollment")
	}
	approvedSet := make(map[string]struct{}, len(approved))
	for _, id := range approved {
		approvedSet[id] = struct{}{}
	}
	var unknown []string
	for _, id := range order {
		if _, ok := approvedSet[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "students not enrolled in course: "+strings.Join(unknown, ", "))
	}

	records := make([]models.AttendanceRecord, len(order))
	for i, studentID := range order {
		records[i] = models.AttendanceRecord{
			CourseID:  req.CourseID,
			StudentID: studentID,
			Date:      day,
			Status:    statusByStudent[studentID],
			MarkedBy:  actor.ID,
		}
	}
	if errs := s.repo.BulkUpsert(ctx, records); len(errs) > 0 {
		if len(errs) == len(records) {
			return nil, appErrors.Clone(appErrors.ErrInternal, "failed to mark attendance")
		}
		for _, msg := range errs {
			s.logger.Warn("mark attendance entry failed", zap.String("course_id", req.CourseID), zap.String("detail", msg))
		}
	}
	s.metrics.AddMarked(len(records))
	s.invalidateStats(ctx, req.CourseID)

	dayFilter := models.AttendanceFilter{CourseID: req.CourseID, DateFrom: &day, DateTo: &day}
	rows, err := s.repo.ListAllDetails(ctx, dayFilter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload attendance")
	}
	summary, err := s.repo.StatusSummary(ctx, dayFilter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise attendance")
	}
	return &models.MarkResult{Records: rows, Summary: *summary}, nil
}

// UpdateAttendanceRequest updates one or more records to a new status.
type UpdateAttendanceRequest struct {
	IDs           []string `json:"ids" validate:"required,min=1"`
	Status        string   `json:"status" validate:"required,attendance_status"`
	ReturnIDsOnly bool     `json:"return_ids_only"`
}

// Update applies the status change. The single-id path fails fast with a
// typed error; the multi-id path processes every id independently and
// accumulates failures without aborting the batch.
func (s *AttendanceService) Update(ctx context.Context, req UpdateAttendanceRequest, actor models.Actor) (*models.UpdateResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if actor.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students cannot update attendance")
	}
	status := models.AttendanceStatus(req.Status)

	if len(req.IDs) == 1 {
		record, err := s.updateOne(ctx, req.IDs[0], status, actor)
		if err != nil {
			return nil, err
		}
		result := &models.UpdateResult{Updated: 1, UpdatedIDs: []string{record.ID}}
		if !req.ReturnIDsOnly {
			result.Records = []models.AttendanceRecord{*record}
		}
		s.invalidateStats(ctx, record.CourseID)
		return result, nil
	}

	result := &models.UpdateResult{}
	courses := map[string]struct{}{}
	for _, id := range req.IDs {
		record, err := s.updateOne(ctx, id, status, actor)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("record %s: %s", id, appErrors.FromError(err).Message))
			continue
		}
		result.Updated++
		result.UpdatedIDs = append(result.UpdatedIDs, record.ID)
		if !req.ReturnIDsOnly {
			result.Records = append(result.Records, *record)
		}
		courses[record.CourseID] = struct{}{}
	}
	for courseID := range courses {
		s.invalidateStats(ctx, courseID)
	}
	return result, nil
}

func (s *AttendanceService) updateOne(ctx context.Context, id string, status models.AttendanceStatus, actor models.Actor) (*models.AttendanceRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid attendance id")
	}
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}
	if _, err := ensureManagePermission(ctx, s.courses, record.CourseID, actor); err != nil {
		return nil, err
	}
	if actor.Role == models.RoleTeacher && time.Since(record.CreatedAt) > s.cfg.MaxEditWindow {
		return nil, appErrors.Clone(appErrors.ErrForbidden,
			fmt.Sprintf("teachers can only edit records within %s of marking", s.cfg.MaxEditWindow))
	}
	updated, err := s.repo.UpdateStatus(ctx, id, status, actor.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance record")
	}
	return updated, nil
}

// DeleteOne removes a single record after re-checking permissions.
func (s *AttendanceService) DeleteOne(ctx context.Context, id string, actor models.Actor) (*models.DeleteResult, error) {
	if actor.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students cannot delete attendance")
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid attendance id")
	}
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}
	if err := s.checkDeletable(ctx, record, actor, map[string]*models.Course{}); err != nil {
		return nil, err
	}
	deleted, err := s.repo.DeleteByIDs(ctx, []string{id})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete attendance record")
	}
	s.metrics.AddDeleted(deleted)
	s.invalidateStats(ctx, record.CourseID)
	return &models.DeleteResult{Deleted: deleted > 0, Record: record}, nil
}

// DeleteMany removes up to the configured cap of records. Every id must
// be well-formed and exist; per-record permission failures are collected
// and skip the record without aborting the batch.
func (s *AttendanceService) DeleteMany(ctx context.Context, ids []string, actor models.Actor) (*models.BulkDeleteResult, error) {
	if actor.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students cannot delete attendance")
	}
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no attendance ids provided")
	}

	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) > s.cfg.MaxBulkDelete {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("cannot delete more than %d records at once", s.cfg.MaxBulkDelete))
	}
	for _, id := range unique {
		if _, err := uuid.Parse(id); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid attendance id: "+id)
		}
	}

	records, err := s.repo.FindByIDs(ctx, unique)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance records")
	}
	if len(records) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no attendance records found")
	}
	if len(records) != len(unique) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "some attendance records do not exist")
	}

	result := &models.BulkDeleteResult{Total: len(records), DeletedIDs: []string{}, DeletedRecords: []models.AttendanceRecord{}}
	courseCache := map[string]*models.Course{}
	touched := map[string]struct{}{}
	for i := range records {
		record := records[i]
		if err := s.checkDeletable(ctx, &record, actor, courseCache); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("record %s: %s", record.ID, appErrors.FromError(err).Message))
			continue
		}
		result.DeletedIDs = append(result.DeletedIDs, record.ID)
		result.DeletedRecords = append(result.DeletedRecords, record)
		touched[record.CourseID] = struct{}{}
	}

	if len(result.DeletedIDs) > 0 {
		deleted, err := s.repo.DeleteByIDs(ctx, result.DeletedIDs)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete attendance records")
		}
		result.Deleted = deleted
		s.metrics.AddDeleted(deleted)
	}
	result.Skipped = result.Total - result.Deleted
	for courseID := range touched {
		s.invalidateStats(ctx, courseID)
	}
	return result, nil
}

// checkDeletable re-checks the permission gate and schedule window for
// one record. Courses are cached per call so a batch touching one course
// costs one lookup.
func (s *AttendanceService) checkDeletable(ctx context.Context, record *models.AttendanceRecord, actor models.Actor, courseCache map[string]*models.Course) error {
	course, ok := courseCache[record.CourseID]
	if !ok {
		var err error
		course, err = s.courses.FindByID(ctx, record.CourseID)
		if err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, "course not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
		}
		courseCache[record.CourseID] = course
	}
	if actor.Role == models.RoleTeacher && !course.HasTeacher(actor.ID) {
		return appErrors.Clone(appErrors.ErrForbidden, "you do not teach this course")
	}
	if err := assertDateWithinCourseSchedule(course, normalizeDateOnly(record.Date)); err != nil {
		return err
	}
	if actor.Role == models.RoleTeacher && daysDiffFromToday(record.Date) != 0 {
		return appErrors.Clone(appErrors.ErrForbidden, "teachers can only delete records marked today")
	}
	return nil
}

func (s *AttendanceService) invalidateStats(ctx context.Context, courseID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, statsCachePattern(courseID)); err != nil {
		s.logger.Warn("failed to invalidate stats cache", zap.String("course_id", courseID), zap.Error(err))
	}
}

func paginationFor(filter models.AttendanceFilter, total int) *models.Pagination {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
