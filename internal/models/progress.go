package models

import "time"

// ModuleProgress is one learner's activity on one course module. A row
// is created when the module is started and mutated exactly once when
// it is completed.
type ModuleProgress struct {
	ID               string     `db:"id" json:"id"`
	EnrollmentID     string     `db:"enrollment_id" json:"enrollment_id"`
	ModuleID         string     `db:"module_id" json:"module_id"`
	StartedAt        time.Time  `db:"started_at" json:"started_at"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	TimeSpentMinutes *int       `db:"time_spent_minutes" json:"time_spent_minutes,omitempty"`
}

// ModuleCompletion describes the outcome of completing a module,
// including the recomputed enrollment aggregate.
type ModuleCompletion struct {
	EnrollmentID      string `json:"enrollment_id"`
	ModuleID          string `json:"module_id"`
	LearnerID         string `json:"learner_id"`
	CourseID          string `json:"course_id"`
	CompletionPercent int    `json:"completion_percent"`
	CourseCompleted   bool   `json:"course_completed"`
	ModuleXP          int    `json:"module_xp"`
	TimeSpentMinutes  int    `json:"time_spent_minutes"`
}

// ProgressStats summarizes an enrollment's activity across the course
// modules. CompletionPercent is the persisted enrollment aggregate.
type ProgressStats struct {
	ModulesTotal      int `json:"modules_total"`
	ModulesCompleted  int `json:"modules_completed"`
	RequiredTotal     int `json:"required_total"`
	RequiredCompleted int `json:"required_completed"`
	CompletionPercent int `json:"completion_percent"`
	XPEarned          int `json:"xp_earned"`
}

// ProgressDetail is the composite progress view for one enrollment.
type ProgressDetail struct {
	Enrollment Enrollment           `json:"enrollment"`
	Modules    []ModuleProgressView `json:"modules"`
	Stats      ProgressStats        `json:"stats"`
}

// ModuleProgressView joins catalog module metadata with the learner's
// progress for the per-enrollment module listing.
type ModuleProgressView struct {
	ModuleID    string     `db:"module_id" json:"module_id"`
	Title       string     `db:"title" json:"title"`
	Position    int        `db:"position" json:"position"`
	Required    bool       `db:"required" json:"required"`
	XP          int        `db:"xp" json:"xp"`
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	Completed   bool       `db:"completed" json:"completed"`
}
