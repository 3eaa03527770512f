package model

import "time"

// ProjectDraft is one pending write: the latest answer for a question field
type ProjectDraft struct {
	QuestionID string `json:"questionId" msgpack:"questionId"`
	FieldKey   string `json:"fieldKey,omitempty" msgpack:"fieldKey,omitempty"`
	Answer     Value  `json:"answer" msgpack:"answer"`
}

// Key identifies the field a draft writes to
func (d ProjectDraft) Key() string {
	return DraftKey(d.QuestionID, d.FieldKey)
}

// DraftKey builds the dirty-map key for a question field
func DraftKey(questionID, fieldKey string) string {
	if fieldKey == "" {
		fieldKey = PrimaryField
	}
	return questionID + "/" + fieldKey
}

// ProjectDocument is document metadata returned by the backend after an upload
type ProjectDocument struct {
	ID         string    `json:"id"`
	QuestionID string    `json:"questionId"`
	FieldKey   string    `json:"fieldKey,omitempty"`
	Name       string    `json:"name"`
	URL        string    `json:"url,omitempty"`
	MimeType   string    `json:"mimeType,omitempty"`
	Size       int64     `json:"size,omitempty"`
	Section    string    `json:"section,omitempty"`
	SubSection string    `json:"subSection,omitempty"`
	UploadedAt time.Time `json:"uploadedAt,omitempty"`
}

// Record converts document metadata into the file record stored in a field
func (d ProjectDocument) Record() FileRecord {
	return FileRecord{ID: d.ID, Name: d.Name, URL: d.URL, MimeType: d.MimeType, Size: d.Size}
}

// ProjectQuestions is everything the backend returns for a project's form
type ProjectQuestions struct {
	Questions   []Question
	Documents   []ProjectDocument
	TeamMembers []TeamMember
}

// SubSection is a named group of questions inside a section
type SubSection struct {
	Name      string     `json:"name" msgpack:"name"`
	Questions []Question `json:"questions" msgpack:"questions"`
}

// GroupedProjectQuestions is one section of the form, i.e. one step
type GroupedProjectQuestions struct {
	Section         string       `json:"section" msgpack:"section"`
	SubSectionNames []string     `json:"subSectionNames" msgpack:"subSectionNames"`
	SubSections     []SubSection `json:"subSections" msgpack:"subSections"`
}

// SessionSnapshot is what a session needs to resume after a restart
type SessionSnapshot struct {
	SessionID string         `msgpack:"sessionId"`
	ProjectID string         `msgpack:"projectId"`
	FounderID string         `msgpack:"founderId"`
	Step      int            `msgpack:"step"`
	Pending   []ProjectDraft `msgpack:"pending"`
	SavedAt   time.Time      `msgpack:"savedAt"`
}
