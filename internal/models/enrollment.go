package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. COMPLETED is terminal; CANCELLED is
// only ever set by an external administrative flow.
const (
	EnrollmentStatusInProgress EnrollmentStatus = "IN_PROGRESS"
	EnrollmentStatusCompleted  EnrollmentStatus = "COMPLETED"
	EnrollmentStatusCancelled  EnrollmentStatus = "CANCELLED"
)

// Enrollment captures a learner's registration in a course and the
// derived completion state.
type Enrollment struct {
	ID                string           `db:"id" json:"id"`
	LearnerID         string           `db:"learner_id" json:"learner_id"`
	CourseID          string           `db:"course_id" json:"course_id"`
	Status            EnrollmentStatus `db:"status" json:"status"`
	CompletionPercent int              `db:"completion_percent" json:"completion_percent"`
	EnrolledAt        time.Time        `db:"enrolled_at" json:"enrolled_at"`
	StartedAt         time.Time        `db:"started_at" json:"started_at"`
	CompletedAt       *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
}

// Active reports whether the enrollment still accepts module activity.
func (e *Enrollment) Active() bool {
	return e.Status == EnrollmentStatusInProgress
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	LearnerID string
	CourseID  string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
}

// RosterEntry enriches an enrollment with module counts for the
// course-roster listing consumed by instructors.
type RosterEntry struct {
	Enrollment
	ModulesCompleted int `db:"modules_completed" json:"modules_completed"`
	ModulesTotal     int `db:"modules_total" json:"modules_total"`
}
