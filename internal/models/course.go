package models

// Course is the read-only catalog view of a course. Owned by the
// catalog service; never written by this core.
type Course struct {
	ID             string `db:"id" json:"id"`
	Code           string `db:"code" json:"code"`
	Title          string `db:"title" json:"title"`
	InstructorID   string `db:"instructor_id" json:"instructor_id"`
	EstimatedHours int    `db:"estimated_hours" json:"estimated_hours"`
}

// CourseModule is the catalog view of a module within a course.
type CourseModule struct {
	ID       string `db:"id" json:"id"`
	CourseID string `db:"course_id" json:"course_id"`
	Title    string `db:"title" json:"title"`
	Position int    `db:"position" json:"position"`
	Required bool   `db:"required" json:"required"`
	XP       int    `db:"xp" json:"xp"`
}

// Prerequisite names a course that must be completed before enrolling,
// in the order declared by the catalog.
type Prerequisite struct {
	CourseID string `db:"course_id" json:"course_id"`
	Code     string `db:"code" json:"code"`
	Title    string `db:"title" json:"title"`
}
