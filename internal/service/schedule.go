package service

import (
	"time"

	"github.com/NTA1210/learning-management-system-sub007/internal/models"
	appErrors "github.com/NTA1210/learning-management-system-sub007/pkg/errors"
)

// Dates enter and leave the attendance core at day granularity in UTC so
// equality comparisons are exact.

// normalizeDateOnly truncates a timestamp to its UTC day boundary.
func normalizeDateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// endOfDay extends a day to its last representable instant, used for
// inclusive upper bounds on range filters.
func endOfDay(t time.Time) time.Time {
	return normalizeDateOnly(t).Add(24*time.Hour - time.Nanosecond)
}

// daysDiffFromToday returns the signed day count relative to today:
// today is 0, yesterday -1, tomorrow +1.
func daysDiffFromToday(t time.Time) int {
	today := normalizeDateOnly(time.Now())
	target := normalizeDateOnly(t)
	return int(target.Sub(today).Hours() / 24)
}

// assertDateWithinCourseSchedule rejects write dates outside the course
// window. The date must already be normalized.
func assertDateWithinCourseSchedule(course *models.Course, date time.Time) error {
	start := normalizeDateOnly(course.StartDate)
	end := normalizeDateOnly(course.EndDate)
	if date.Before(start) || date.After(end) {
		return appErrors.Clone(appErrors.ErrValidation, "date is outside the course schedule")
	}
	return nil
}

// clampDateRangeToCourse resolves a read range against the course window:
// missing bounds default to the course bounds and out-of-window bounds are
// pulled inward. An inverted result after clamping is rejected.
func clampDateRangeToCourse(course *models.Course, from, to *time.Time) (time.Time, time.Time, error) {
	start := normalizeDateOnly(course.StartDate)
	end := normalizeDateOnly(course.EndDate)

	lo := start
	if from != nil {
		lo = normalizeDateOnly(*from)
		if lo.Before(start) {
			lo = start
		}
	}
	hi := end
	if to != nil {
		hi = normalizeDateOnly(*to)
		if hi.After(end) {
			hi = end
		}
	}
	if lo.After(hi) {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "date range is empty after clamping to the course schedule")
	}
	return lo, hi, nil
}

// buildDateRangeFilter normalizes caller-supplied bounds for unscoped
// queries, extending the upper bound to end-of-day. Both results are nil
// when neither bound is given: callers must omit the date constraint
// entirely in that case.
func buildDateRangeFilter(from, to *time.Time) (*time.Time, *time.Time) {
	if from == nil && to == nil {
		return nil, nil
	}
	var lo, hi *time.Time
	if from != nil {
		v := normalizeDateOnly(*from)
		lo = &v
	}
	if to != nil {
		v := endOfDay(*to)
		hi = &v
	}
	return lo, hi
}
