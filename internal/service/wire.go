package service

import (
	"encoding/json"
	"fmt"
	"time"

	"launchpad/internal/model"
)

// The funding platform speaks snake_case JSON. These DTOs exist only at the
// HTTP boundary; everything past backend_client.go uses the model types.

type questionsResponse struct {
	Questions   []questionDTO   `json:"questions"`
	Documents   []documentDTO   `json:"documents,omitempty"`
	TeamMembers []teamMemberDTO `json:"team_members,omitempty"`
}

type conditionTypeDTO struct {
	ConditionTypeEnum string `json:"condition_type_enum"`
	Valid             bool   `json:"valid"`
}

type fieldDTO struct {
	Key         string                 `json:"key"`
	Label       string                 `json:"label,omitempty"`
	Type        string                 `json:"type"`
	Required    bool                   `json:"required"`
	Validations []model.ValidationRule `json:"validations,omitempty"`
	Value       json.RawMessage        `json:"value,omitempty"`
}

type questionDTO struct {
	ID                  string                 `json:"id"`
	Question            string                 `json:"question"`
	Placeholder         string                 `json:"placeholder,omitempty"`
	Section             string                 `json:"section"`
	SubSection          string                 `json:"sub_section"`
	SectionOrder        int                    `json:"section_order"`
	SubSectionOrder     int                    `json:"sub_section_order"`
	QuestionOrder       int                    `json:"question_order"`
	InputType           string                 `json:"input_type"`
	Required            bool                   `json:"required"`
	Options             []model.Option         `json:"options,omitempty"`
	DependentQuestionID string                 `json:"dependent_question_id,omitempty"`
	ConditionType       *conditionTypeDTO      `json:"condition_type,omitempty"`
	ConditionValue      string                 `json:"condition_value,omitempty"`
	Validations         []model.ValidationRule `json:"validations,omitempty"`
	Fields              []fieldDTO             `json:"fields,omitempty"`
	Value               json.RawMessage        `json:"value,omitempty"`
}

type fileDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

type documentDTO struct {
	ID         string     `json:"id"`
	QuestionID string     `json:"question_id"`
	FieldKey   string     `json:"field_key,omitempty"`
	Name       string     `json:"name"`
	URL        string     `json:"url,omitempty"`
	MimeType   string     `json:"mime_type,omitempty"`
	Size       int64      `json:"size,omitempty"`
	Section    string     `json:"section,omitempty"`
	SubSection string     `json:"sub_section,omitempty"`
	UploadedAt *time.Time `json:"uploaded_at,omitempty"`
}

type teamMemberDTO struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
	Email    string `json:"email,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
}

type draftDTO struct {
	QuestionID string      `json:"question_id"`
	FieldKey   string      `json:"field_key,omitempty"`
	Answer     interface{} `json:"answer"`
}

type draftRequest struct {
	Draft []draftDTO `json:"draft"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (d documentDTO) toModel() model.ProjectDocument {
	doc := model.ProjectDocument{
		ID:         d.ID,
		QuestionID: d.QuestionID,
		FieldKey:   d.FieldKey,
		Name:       d.Name,
		URL:        d.URL,
		MimeType:   d.MimeType,
		Size:       d.Size,
		Section:    d.Section,
		SubSection: d.SubSection,
	}
	if d.UploadedAt != nil {
		doc.UploadedAt = *d.UploadedAt
	}
	return doc
}

func (m teamMemberDTO) toModel() model.TeamMember {
	return model.TeamMember{ID: m.ID, Name: m.Name, Role: m.Role, Email: m.Email, LinkedIn: m.LinkedIn}
}

func (r questionsResponse) toModel() (*model.ProjectQuestions, error) {
	out := &model.ProjectQuestions{
		Questions:   make([]model.Question, 0, len(r.Questions)),
		Documents:   make([]model.ProjectDocument, 0, len(r.Documents)),
		TeamMembers: make([]model.TeamMember, 0, len(r.TeamMembers)),
	}
	for _, dto := range r.Questions {
		q, err := dto.toModel()
		if err != nil {
			return nil, err
		}
		out.Questions = append(out.Questions, q)
	}
	for _, d := range r.Documents {
		out.Documents = append(out.Documents, d.toModel())
	}
	for _, m := range r.TeamMembers {
		out.TeamMembers = append(out.TeamMembers, m.toModel())
	}
	out.Questions = mergeAttachments(out.Questions, out.Documents, out.TeamMembers)
	return out, nil
}

func (d questionDTO) toModel() (model.Question, error) {
	q := model.Question{
		ID:                  d.ID,
		Text:                d.Question,
		Placeholder:         d.Placeholder,
		Section:             d.Section,
		SubSection:          d.SubSection,
		SectionOrder:        d.SectionOrder,
		SubSectionOrder:     d.SubSectionOrder,
		QuestionOrder:       d.QuestionOrder,
		InputType:           model.InputType(d.InputType),
		Required:            d.Required,
		Options:             d.Options,
		DependentQuestionID: d.DependentQuestionID,
		ConditionValue:      d.ConditionValue,
		Validations:         d.Validations,
	}
	if d.ConditionType != nil {
		q.ConditionType = model.ConditionType{
			Kind:  model.ParseConditionKind(d.ConditionType.ConditionTypeEnum),
			Valid: d.ConditionType.Valid,
		}
	}

	v, err := decodeWireValue(q.InputType, d.Value)
	if err != nil {
		return model.Question{}, fmt.Errorf("question %s: %w", d.ID, err)
	}
	q.Value = v

	for _, f := range d.Fields {
		fv, err := decodeWireValue(model.InputType(f.Type), f.Value)
		if err != nil {
			return model.Question{}, fmt.Errorf("question %s field %s: %w", d.ID, f.Key, err)
		}
		q.Fields = append(q.Fields, model.Field{
			Key:         f.Key,
			Label:       f.Label,
			Type:        model.InputType(f.Type),
			Required:    f.Required,
			Validations: f.Validations,
			Value:       fv,
		})
	}
	return q, nil
}

// decodeWireValue reads file and team answers through their snake_case DTOs
func decodeWireValue(t model.InputType, raw json.RawMessage) (model.Value, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return model.EmptyValue(t), nil
	}
	switch t {
	case model.InputFile:
		var files []fileDTO
		if err := json.Unmarshal(raw, &files); err != nil {
			return model.Value{}, fmt.Errorf("decode file value: %w", err)
		}
		records := make([]model.FileRecord, 0, len(files))
		for _, f := range files {
			records = append(records, model.FileRecord{ID: f.ID, Name: f.Name, URL: f.URL, MimeType: f.MimeType, Size: f.Size})
		}
		return model.FilesValue(records...), nil
	case model.InputTeam:
		var members []teamMemberDTO
		if err := json.Unmarshal(raw, &members); err != nil {
			return model.Value{}, fmt.Errorf("decode team value: %w", err)
		}
		out := make([]model.TeamMember, 0, len(members))
		for _, m := range members {
			out = append(out, m.toModel())
		}
		return model.MembersValue(out...), nil
	default:
		return model.DecodeValue(t, raw)
	}
}

// answerToWire converts a draft answer into the platform's JSON shape
func answerToWire(v model.Value) interface{} {
	switch v.Kind {
	case model.KindOptions:
		if v.Options == nil {
			return []model.Option{}
		}
		return v.Options
	case model.KindFiles:
		files := make([]fileDTO, 0, len(v.Files))
		for _, f := range v.Files {
			files = append(files, fileDTO{ID: f.ID, Name: f.Name, URL: f.URL, MimeType: f.MimeType, Size: f.Size})
		}
		return files
	case model.KindMembers:
		members := make([]teamMemberDTO, 0, len(v.Members))
		for _, m := range v.Members {
			members = append(members, teamMemberDTO{ID: m.ID, Name: m.Name, Role: m.Role, Email: m.Email, LinkedIn: m.LinkedIn})
		}
		return members
	default:
		return v.Text
	}
}

func toDraftRequest(drafts []model.ProjectDraft) draftRequest {
	req := draftRequest{Draft: make([]draftDTO, 0, len(drafts))}
	for _, d := range drafts {
		fieldKey := d.FieldKey
		if fieldKey == model.PrimaryField {
			fieldKey = ""
		}
		req.Draft = append(req.Draft, draftDTO{QuestionID: d.QuestionID, FieldKey: fieldKey, Answer: answerToWire(d.Answer)})
	}
	return req
}

// mergeAttachments puts uploaded documents into their file fields and the
// team roster into the first team question that has no answer yet.
func mergeAttachments(questions []model.Question, docs []model.ProjectDocument, members []model.TeamMember) []model.Question {
	index := make(map[string]int, len(questions))
	for i, q := range questions {
		index[q.ID] = i
	}

	for _, doc := range docs {
		i, ok := index[doc.QuestionID]
		if !ok {
			continue
		}
		q := questions[i]
		key := doc.FieldKey
		if key == "" {
			key = firstFileField(q)
		}
		if key == "" {
			continue
		}
		current, _ := q.FieldValue(key)
		if containsFile(current, doc.ID) {
			continue
		}
		files := append(append([]model.FileRecord(nil), current.Files...), doc.Record())
		questions[i], _ = q.WithFieldValue(key, model.FilesValue(files...))
	}

	if len(members) > 0 {
		for i, q := range questions {
			if q.InputType == model.InputTeam && q.Value.IsEmpty() {
				questions[i].Value = model.MembersValue(members...)
				break
			}
		}
	}
	return questions
}

func firstFileField(q model.Question) string {
	for _, f := range q.DeclaredFields() {
		if f.Type == model.InputFile {
			return f.Key
		}
	}
	return ""
}

func containsFile(v model.Value, id string) bool {
	for _, f := range v.Files {
		if f.ID == id {
			return true
		}
	}
	return false
}
