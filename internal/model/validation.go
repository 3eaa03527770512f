package model

const (
	ReasonMissingRequired  = "Missing required value"
	ReasonFailedValidation = "Failed validation"
)

// ValidationError describes one field that blocks submission
type ValidationError struct {
	Section      string    `json:"section"`
	SubSection   string    `json:"subsection"`
	QuestionID   string    `json:"questionId"`
	FieldKey     string    `json:"fieldKey"`
	QuestionText string    `json:"questionText"`
	InputType    InputType `json:"inputType"`
	Required     bool      `json:"required"`
	Value        Value     `json:"value"`
	Reason       string    `json:"reason"`
	// Message is the failing rule's own message, if it declared one
	Message string `json:"message,omitempty"`
}

// RecommendedField is an optional field left empty, shown before submit
type RecommendedField struct {
	Section      string    `json:"section"`
	SubSection   string    `json:"subsection"`
	QuestionID   string    `json:"questionId"`
	FieldKey     string    `json:"fieldKey"`
	QuestionText string    `json:"questionText"`
	InputType    InputType `json:"inputType"`
}
