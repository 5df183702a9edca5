package events

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys for the progress.events topic exchange.
const (
	RoutingKeyModuleCompleted   = "progress.module.completed.v1"
	RoutingKeyCourseCompleted   = "progress.course.completed.v1"
	RoutingKeyCertificateIssued = "progress.certificate.issued.v1"
)

// Envelope wraps every domain event published to the broker.
type Envelope struct {
	EventID    string      `json:"eventId"`
	Type       string      `json:"type"`
	Version    int         `json:"version"`
	OccurredAt time.Time   `json:"occurredAt"`
	Source     string      `json:"source"`
	Payload    interface{} `json:"payload"`
}

// NewEnvelope stamps a payload with identity and provenance.
func NewEnvelope(eventType, source string, payload interface{}) Envelope {
	return Envelope{
		EventID:    uuid.NewString(),
		Type:       eventType,
		Version:    1,
		OccurredAt: time.Now().UTC(),
		Source:     source,
		Payload:    payload,
	}
}

// ModuleCompleted is published after every successful module completion.
type ModuleCompleted struct {
	EnrollmentID    string `json:"enrollmentId"`
	CourseID        string `json:"courseId"`
	LearnerID       string `json:"learnerId"`
	ModuleID        string `json:"moduleId"`
	ProgressPercent int    `json:"progressPercent"`
	CourseCompleted bool   `json:"courseCompleted"`
}

// CourseCompleted is published when a completion drives an enrollment to 100%.
type CourseCompleted struct {
	EnrollmentID  string `json:"enrollmentId"`
	CourseID      string `json:"courseId"`
	LearnerID     string `json:"learnerId"`
	TotalProgress int    `json:"totalProgress"`
}

// CertificateIssued is published after the completion cascade issues a
// certificate. Only the leading 16 hex characters of the verification
// hash are broadcast, for audit purposes.
type CertificateIssued struct {
	CourseID                 string  `json:"courseId"`
	LearnerID                string  `json:"learnerId"`
	CertificateCode          string  `json:"certificateCode"`
	IssuedAt                 string  `json:"issuedAt"`
	StorageKey               *string `json:"storageKey"`
	VerificationHashFragment string  `json:"verificationHashFragment"`
}
