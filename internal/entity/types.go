package entity

import (
	"slices"
	"time"
)

// MaxImportance is the ceiling of Memory.Importance. Higher inputs are clamped.
const MaxImportance = 100

// Note is a shareable encrypted text.
type Note struct {
	ID            ID     `json:"id"`
	Owner         string `json:"owner"`
	EncryptedText string `json:"encrypted_text"`

	// Grantees never contains Owner. Kept on the record so a note can show
	// with whom it is shared without scanning the share index.
	Grantees []string `json:"users"`
}

// HasGrantee reports whether p is in the note's grantee list.
func (n *Note) HasGrantee(p string) bool {
	return slices.Contains(n.Grantees, p)
}

// Passport is an AI agent's identity record.
type Passport struct {
	ID            ID        `json:"id"`
	Owner         string    `json:"owner"`
	Name          string    `json:"agent_name"`
	AgentType     string    `json:"agent_type"`
	Capabilities  []string  `json:"capabilities"`
	EncryptedSpec string    `json:"encrypted_specifications"`
	Endpoints     []string  `json:"api_endpoints"`
	CreatedAt     time.Time `json:"created_at"`
	LastActive    time.Time `json:"last_active"`
	Active        bool      `json:"is_active"`
}

// Memory is encrypted content attached to a passport.
type Memory struct {
	ID               ID        `json:"id"`
	Owner            string    `json:"owner"`
	PassportID       ID        `json:"passport_id"`
	Kind             string    `json:"memory_type"`
	EncryptedContent string    `json:"encrypted_content"`
	Importance       uint8     `json:"importance_score"`
	CreatedAt        time.Time `json:"created_at"`
}

// ClampImportance maps any score into [0, MaxImportance].
func ClampImportance(score int) uint8 {
	switch {
	case score < 0:
		return 0
	case score > MaxImportance:
		return MaxImportance
	}
	return uint8(score)
}

// WildcardPermission grants every permission.
const WildcardPermission = "*"

// Token is an API token bound to a passport. Only the fingerprint of the
// secret is stored.
type Token struct {
	ID          ID         `json:"id"`
	Owner       string     `json:"owner"`
	PassportID  ID         `json:"passport_id"`
	Name        string     `json:"name"`
	Fingerprint string     `json:"token_hash"`
	Permissions []string   `json:"permissions"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
	Active      bool       `json:"is_active"`
}

// Valid reports whether the token is active and unexpired at now.
func (t *Token) Valid(now time.Time) bool {
	if !t.Active {
		return false
	}
	if t.ExpiresAt != nil && now.After(*t.ExpiresAt) {
		return false
	}
	return true
}

// HasPermission reports whether the token grants perm, directly or through
// the wildcard.
func (t *Token) HasPermission(perm string) bool {
	return slices.Contains(t.Permissions, perm) || slices.Contains(t.Permissions, WildcardPermission)
}

// JobStatus is a synthetic job's lifecycle state.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no transition may leave the status.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobSettings are the generation parameters a job was created with.
type JobSettings struct {
	DatasetID            ID     `json:"dataset_id"`
	NumRecords           int    `json:"num_records"`
	PrivacyLevel         string `json:"privacy_level"`
	CustomPrompt         string `json:"custom_prompt,omitempty"`
	PreserveCorrelations bool   `json:"preserve_correlations"`
	HIPAACompliant       bool   `json:"hipaa_compliant"`
	MedicalMode          bool   `json:"medical_mode"`
}

// Job tracks a synthetic-data generation request.
type Job struct {
	ID           string      `json:"job_id"`
	Owner        string      `json:"owner"`
	Settings     JobSettings `json:"settings"`
	Status       JobStatus   `json:"status"`
	Progress     uint8       `json:"progress"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	ResultNoteID *ID         `json:"result_dataset_id,omitempty"`
	Error        string      `json:"error_message,omitempty"`
}
