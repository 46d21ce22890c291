package models

import "time"

// Course is owned by the course module and consumed read-only here.
// StartDate and EndDate bound the valid attendance window.
type Course struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	StartDate  time.Time `db:"start_date" json:"start_date"`
	EndDate    time.Time `db:"end_date" json:"end_date"`
	TeacherIDs []string  `json:"teacher_ids"`
}

// HasTeacher reports whether the given user teaches this course.
func (c *Course) HasTeacher(userID string) bool {
	for _, id := range c.TeacherIDs {
		if id == userID {
			return true
		}
	}
	return false
}
