package model

import "time"

// SubmitStage is where the submit pipeline stopped
type SubmitStage string

const (
	StageValidationFailed SubmitStage = "validation_failed"
	StageRecommended      SubmitStage = "recommended"
	StageConfirm          SubmitStage = "confirm"
	StageSubmitted        SubmitStage = "submitted"
	StageFailed           SubmitStage = "failed"
)

// SubmissionAttempt records one press of the submit button
type SubmissionAttempt struct {
	ID          string      `json:"id" bson:"_id,omitempty"`
	ProjectID   string      `json:"projectId" bson:"projectId"`
	FounderID   string      `json:"founderId" bson:"founderId"`
	SessionID   string      `json:"sessionId" bson:"sessionId"`
	Stage       SubmitStage `json:"stage" bson:"stage"`
	Success     bool        `json:"success" bson:"success"`
	Message     string      `json:"message,omitempty" bson:"message,omitempty"`
	ErrorCount  int         `json:"errorCount" bson:"errorCount"`
	AttemptedAt time.Time   `json:"attemptedAt" bson:"attemptedAt"`
}

// JournalEntry is a draft as stored in the flush journal. Answer holds the
// JSON encoding of the value so the document stays readable in the shell.
type JournalEntry struct {
	QuestionID string `json:"questionId" bson:"questionId"`
	FieldKey   string `json:"fieldKey,omitempty" bson:"fieldKey,omitempty"`
	InputType  string `json:"inputType" bson:"inputType"`
	Answer     string `json:"answer" bson:"answer"`
}

// FlushFailure is an autosave batch the backend rejected
type FlushFailure struct {
	ID        string         `json:"id" bson:"_id,omitempty"`
	ProjectID string         `json:"projectId" bson:"projectId"`
	FounderID string         `json:"founderId" bson:"founderId"`
	Entries   []JournalEntry `json:"entries" bson:"entries"`
	Error     string         `json:"error" bson:"error"`
	// Restored is true when the batch was kept pending in the session
	Restored   bool       `json:"restored" bson:"restored"`
	FailedAt   time.Time  `json:"failedAt" bson:"failedAt"`
	ReplayedAt *time.Time `json:"replayedAt,omitempty" bson:"replayedAt,omitempty"`
}
