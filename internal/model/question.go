package model

// InputType is the kind of input a question (or one of its fields) renders
type InputType string

const (
	InputTextInput   InputType = "textinput"
	InputTextArea    InputType = "textarea"
	InputDate        InputType = "date"
	InputSelect      InputType = "select"
	InputMultiSelect InputType = "multiselect"
	InputFile        InputType = "file"
	InputTeam        InputType = "team"
)

// IsText reports whether values of this type are plain strings
func (t InputType) IsText() bool {
	return t == InputTextInput || t == InputTextArea || t == InputDate
}

// IsChoice reports whether values of this type are option lists
func (t InputType) IsChoice() bool {
	return t == InputSelect || t == InputMultiSelect
}

// Valid reports whether t is one of the known input types
func (t InputType) Valid() bool {
	switch t {
	case InputTextInput, InputTextArea, InputDate, InputSelect, InputMultiSelect, InputFile, InputTeam:
		return true
	}
	return false
}

// ConditionKind is the closed set of visibility conditions.
type ConditionKind int

const (
	ConditionUnknown ConditionKind = iota
	ConditionEmpty
	ConditionNotEmpty
	ConditionEquals
	ConditionContains
)

// ParseConditionKind maps the wire name to a ConditionKind. Unrecognised names
// map to ConditionUnknown, which always renders.
func ParseConditionKind(s string) ConditionKind {
	switch s {
	case "empty":
		return ConditionEmpty
	case "not_empty":
		return ConditionNotEmpty
	case "equals":
		return ConditionEquals
	case "contains":
		return ConditionContains
	default:
		return ConditionUnknown
	}
}

func (k ConditionKind) String() string {
	switch k {
	case ConditionEmpty:
		return "empty"
	case ConditionNotEmpty:
		return "not_empty"
	case ConditionEquals:
		return "equals"
	case ConditionContains:
		return "contains"
	default:
		return "unknown"
	}
}

func (k ConditionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ConditionKind) UnmarshalText(b []byte) error {
	*k = ParseConditionKind(string(b))
	return nil
}

// ConditionType gates rendering of a question on another question's answer.
// Valid=false disables the condition entirely.
type ConditionType struct {
	Kind  ConditionKind `json:"conditionTypeEnum" msgpack:"kind"`
	Valid bool          `json:"valid" msgpack:"valid"`
}

// ValidationRule is a declared predicate over a field value, e.g.
// {Type: "regex", Value: "^https://"}.
type ValidationRule struct {
	Type    string `json:"type" msgpack:"type"`
	Value   string `json:"value,omitempty" msgpack:"value,omitempty"`
	Message string `json:"message,omitempty" msgpack:"message,omitempty"`
}

// PrimaryField is the field key addressing a question's own value.
const PrimaryField = "value"

// Field is an extra input declared on a composite question.
type Field struct {
	Key         string           `json:"key" msgpack:"key"`
	Label       string           `json:"label,omitempty" msgpack:"label,omitempty"`
	Type        InputType        `json:"type" msgpack:"type"`
	Required    bool             `json:"required" msgpack:"required"`
	Validations []ValidationRule `json:"validations,omitempty" msgpack:"validations,omitempty"`
	Value       Value            `json:"value" msgpack:"value"`
	Invalid     bool             `json:"invalid" msgpack:"invalid"`
}

// Question is one form field definition and its live answer
type Question struct {
	ID              string    `json:"id" msgpack:"id"`
	Text            string    `json:"question" msgpack:"text"`
	Placeholder     string    `json:"placeholder,omitempty" msgpack:"placeholder,omitempty"`
	Section         string    `json:"section" msgpack:"section"`
	SubSection      string    `json:"subSection" msgpack:"subSection"`
	SectionOrder    int       `json:"sectionOrder" msgpack:"sectionOrder"`
	SubSectionOrder int       `json:"subSectionOrder" msgpack:"subSectionOrder"`
	QuestionOrder   int       `json:"questionOrder" msgpack:"questionOrder"`
	InputType       InputType `json:"inputType" msgpack:"inputType"`
	Required        bool      `json:"required" msgpack:"required"`
	Options         []Option  `json:"options,omitempty" msgpack:"options,omitempty"`

	DependentQuestionID string        `json:"dependentQuestionId,omitempty" msgpack:"dependentQuestionId,omitempty"`
	ConditionType       ConditionType `json:"conditionType" msgpack:"conditionType"`
	ConditionValue      string        `json:"conditionValue,omitempty" msgpack:"conditionValue,omitempty"`

	Validations []ValidationRule `json:"validations,omitempty" msgpack:"validations,omitempty"`
	Fields      []Field          `json:"fields,omitempty" msgpack:"fields,omitempty"`

	Value   Value `json:"value" msgpack:"value"`
	Invalid bool  `json:"invalid" msgpack:"invalid"`
}

// DeclaredFields returns the question's own value as the PrimaryField followed
// by its extra fields, in declaration order.
func (q Question) DeclaredFields() []Field {
	fields := make([]Field, 0, 1+len(q.Fields))
	fields = append(fields, Field{
		Key:         PrimaryField,
		Label:       q.Text,
		Type:        q.InputType,
		Required:    q.Required,
		Validations: q.Validations,
		Value:       q.Value,
		Invalid:     q.Invalid,
	})
	return append(fields, q.Fields...)
}

// FieldType returns the declared type of fieldKey. An empty key addresses the
// primary field.
func (q Question) FieldType(fieldKey string) (InputType, bool) {
	if fieldKey == "" || fieldKey == PrimaryField {
		return q.InputType, true
	}
	for _, f := range q.Fields {
		if f.Key == fieldKey {
			return f.Type, true
		}
	}
	return "", false
}

// IsFileField scans the declared fields for a file-typed entry named fieldKey.
func (q Question) IsFileField(fieldKey string) bool {
	if fieldKey == "" {
		fieldKey = PrimaryField
	}
	for _, f := range q.DeclaredFields() {
		if f.Key == fieldKey && f.Type == InputFile {
			return true
		}
	}
	return false
}

// FieldValue returns the current value of fieldKey.
func (q Question) FieldValue(fieldKey string) (Value, bool) {
	if fieldKey == "" || fieldKey == PrimaryField {
		return q.Value, true
	}
	for _, f := range q.Fields {
		if f.Key == fieldKey {
			return f.Value, true
		}
	}
	return Value{}, false
}

// WithFieldValue returns a copy of q with fieldKey set to v. The receiver and
// its Fields slice are left untouched.
func (q Question) WithFieldValue(fieldKey string, v Value) (Question, bool) {
	if fieldKey == "" || fieldKey == PrimaryField {
		q.Value = v
		q.Invalid = false
		return q, true
	}
	for i, f := range q.Fields {
		if f.Key != fieldKey {
			continue
		}
		fields := make([]Field, len(q.Fields))
		copy(fields, q.Fields)
		fields[i].Value = v
		fields[i].Invalid = false
		q.Fields = fields
		return q, true
	}
	return q, false
}
