package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/NTA1210/learning-management-system-sub007/internal/models"
)

// AttendanceRepository handles persistence for attendance records.
// The attendance_records table carries a unique index on
// (course_id, student_id, date); every write goes through an upsert so
// the one-record-per-triple invariant is enforced by the store itself.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const attendanceJoins = `FROM attendance_records ar
LEFT JOIN users s ON s.id = ar.student_id
LEFT JOIN courses c ON c.id = ar.course_id
LEFT JOIN users m ON m.id = ar.marked_by`

func buildAttendanceWhere(filter models.AttendanceFilter) (string, []interface{}) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.CourseID != "" {
		where = append(where, fmt.Sprintf("ar.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("ar.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.MarkedBy != "" {
		where = append(where, fmt.Sprintf("ar.marked_by = $%d", len(args)+1))
		args = append(args, filter.MarkedBy)
	}
	if filter.Status != nil && filter.Status.Valid() {
		where = append(where, fmt.Sprintf("ar.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("ar.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("ar.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	return strings.Join(where, " AND "), args
}

// List returns populated attendance rows matching the provided filter
// together with the unpaginated total.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceDetail, int, error) {
	whereClause, args := buildAttendanceWhere(filter)

	allowedSort := map[string]string{
		"date":       "ar.date",
		"status":     "ar.status",
		"student_id": "ar.student_id",
		"created_at": "ar.created_at",
	}
	sortColumn, ok := allowedSort[filter.SortBy]
	if !ok {
		sortColumn = "ar.date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT ar.id, ar.course_id, ar.student_id, ar.date, ar.status, ar.marked_by, ar.created_at, ar.updated_at,
        s.full_name AS student_name, s.username AS student_username, s.email AS student_email,
        c.name AS course_name, m.full_name AS marked_by_name, m.role AS marked_by_role
        %s WHERE %s
        ORDER BY %s %s
        LIMIT %d OFFSET %d`, attendanceJoins, whereClause, sortColumn, order, size, offset)

	var rows []models.AttendanceDetail
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", attendanceJoins, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return rows, total, nil
}

// ListAllDetails returns every populated row matching the filter ordered
// by date descending. Export paths need the full set, not a page.
func (r *AttendanceRepository) ListAllDetails(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceDetail, error) {
	whereClause, args := buildAttendanceWhere(filter)
	query := fmt.Sprintf(`SELECT ar.id, ar.course_id, ar.student_id, ar.date, ar.status, ar.marked_by, ar.created_at, ar.updated_at,
        s.full_name AS student_name, s.username AS student_username, s.email AS student_email,
        c.name AS course_name, m.full_name AS marked_by_name, m.role AS marked_by_role
        %s WHERE %s
        ORDER BY ar.date DESC`, attendanceJoins, whereClause)
	var rows []models.AttendanceDetail
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance for export: %w", err)
	}
	return rows, nil
}

// StatusSummary aggregates the status distribution for the filter without
// materialising full records.
func (r *AttendanceRepository) StatusSummary(ctx context.Context, filter models.AttendanceFilter) (*models.StatusSummary, error) {
	whereClause, args := buildAttendanceWhere(filter)
	query := fmt.Sprintf(`SELECT ar.status, COUNT(*) AS cnt FROM attendance_records ar WHERE %s GROUP BY ar.status`, whereClause)
	rows := []struct {
		Status string `db:"status"`
		Count  int    `db:"cnt"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("attendance status summary: %w", err)
	}
	summary := &models.StatusSummary{}
	for _, row := range rows {
		switch models.AttendanceStatus(row.Status) {
		case models.AttendanceStatusNotYet:
			summary.NotYet += row.Count
		case models.AttendanceStatusPresent:
			summary.Present += row.Count
		case models.AttendanceStatusAbsent:
			summary.Absent += row.Count
		}
		summary.Total += row.Count
	}
	return summary, nil
}

// Upsert writes one record keyed by (course_id, student_id, date). A
// second write for the same triple updates status and marker in place.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	query := `INSERT INTO attendance_records (id, course_id, student_id, date, status, marked_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (course_id, student_id, date)
DO UPDATE SET status = EXCLUDED.status, marked_by = EXCLUDED.marked_by, updated_at = EXCLUDED.updated_at
RETURNING id, course_id, student_id, date, status, marked_by, created_at, updated_at`
	var stored models.AttendanceRecord
	if err := r.db.GetContext(ctx, &stored, query,
		record.ID, record.CourseID, record.StudentID, record.Date, record.Status, record.MarkedBy, record.CreatedAt, record.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert attendance: %w", err)
	}
	return &stored, nil
}

// BulkUpsert writes records independently; one failing row does not roll
// back the others. Returned strings describe the rows that failed.
func (r *AttendanceRepository) BulkUpsert(ctx context.Context, records []models.AttendanceRecord) []string {
	var errs []string
	for i := range records {
		if _, err := r.Upsert(ctx, &records[i]); err != nil {
			errs = append(errs, fmt.Sprintf("student %s on %s: %v",
				records[i].StudentID, records[i].Date.Format("2006-01-02"), err))
		}
	}
	return errs
}

// FindByID fetches one record by id.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	query := `SELECT id, course_id, student_id, date, status, marked_by, created_at, updated_at
FROM attendance_records WHERE id = $1`
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find attendance %s: %w", id, err)
	}
	return &record, nil
}

// FindByIDs fetches all records matching the given ids.
func (r *AttendanceRepository) FindByIDs(ctx context.Context, ids []string) ([]models.AttendanceRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id, course_id, student_id, date, status, marked_by, created_at, updated_at
FROM attendance_records WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build attendance id query: %w", err)
	}
	query = r.db.Rebind(query)
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("find attendance by ids: %w", err)
	}
	return records, nil
}

// UpdateStatus sets a record's status and marker.
func (r *AttendanceRepository) UpdateStatus(ctx context.Context, id string, status models.AttendanceStatus, markedBy string) (*models.AttendanceRecord, error) {
	query := `UPDATE attendance_records
SET status = $2, marked_by = $3, updated_at = $4
WHERE id = $1
RETURNING id, course_id, student_id, date, status, marked_by, created_at, updated_at`
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, id, status, markedBy, time.Now().UTC()); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("update attendance %s: %w", id, err)
	}
	return &record, nil
}

// DeleteByIDs removes the given records and reports how many rows went.
func (r *AttendanceRepository) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM attendance_records WHERE id IN (?)`, ids)
	if err != nil {
		return 0, fmt.Errorf("build attendance delete query: %w", err)
	}
	query = r.db.Rebind(query)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete attendance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete attendance rows affected: %w", err)
	}
	return int(affected), nil
}

// ListForStats returns records inside the window ordered by student then
// date ascending, the shape the streak walk expects. studentID narrows
// the query to one student when non-empty.
func (r *AttendanceRepository) ListForStats(ctx context.Context, courseID, studentID string, from, to time.Time) ([]models.AttendanceRecord, error) {
	where := []string{"course_id = $1", "date >= $2", "date <= $3"}
	args := []interface{}{courseID, from, to}
	if studentID != "" {
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, studentID)
	}
	query := fmt.Sprintf(`SELECT id, course_id, student_id, date, status, marked_by, created_at, updated_at
FROM attendance_records
WHERE %s
ORDER BY student_id ASC, date ASC`, strings.Join(where, " AND "))
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance for stats: %w", err)
	}
	return records, nil
}

// CountAbsences counts a student's absent records in a course up to and
// including the given day.
func (r *AttendanceRepository) CountAbsences(ctx context.Context, courseID, studentID string, until time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM attendance_records
WHERE course_id = $1 AND student_id = $2 AND status = $3 AND date <= $4`
	var count int
	if err := r.db.GetContext(ctx, &count, query, courseID, studentID, models.AttendanceStatusAbsent, until); err != nil {
		return 0, fmt.Errorf("count absences: %w", err)
	}
	return count, nil
}
