package models

import "time"

// CertificateCodeLength is the fixed length of issued certificate codes.
const CertificateCodeLength = 12

// CertificateCodeAlphabet excludes visually ambiguous glyphs (0/O, 1/I/L).
const CertificateCodeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// Certificate is the issued, uniquely-coded proof of course completion.
// Immutable after issuance except for the storage key, which the
// rendering pipeline backfills once.
type Certificate struct {
	ID               string    `db:"id" json:"id"`
	LearnerID        string    `db:"learner_id" json:"learner_id"`
	CourseID         string    `db:"course_id" json:"course_id"`
	Code             string    `db:"code" json:"code"`
	VerificationHash string    `db:"verification_hash" json:"verification_hash"`
	IssuedAt         time.Time `db:"issued_at" json:"issued_at"`
	StorageKey       *string   `db:"storage_key" json:"storage_key,omitempty"`
}

// CertificateValidation is the public answer to a validation query.
type CertificateValidation struct {
	Code      string    `json:"code"`
	CourseID  string    `json:"course_id"`
	LearnerID string    `json:"learner_id"`
	IssuedAt  time.Time `json:"issued_at"`
	Valid     bool      `json:"valid"`
}
