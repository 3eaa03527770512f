package form

import (
	"launchpad/internal/model"
)

// ValidationResult is the outcome of one submit-time validation pass.
// Groups is a copy of the input tree with Invalid flags recomputed.
type ValidationResult struct {
	Valid  bool                            `json:"valid"`
	Errors []model.ValidationError         `json:"errors"`
	Groups []model.GroupedProjectQuestions `json:"-"`
}

// SectionErrors is the error list of one section, in traversal order
type SectionErrors struct {
	Section string                  `json:"section"`
	Errors  []model.ValidationError `json:"errors"`
}

type Validator struct {
	rules *RuleSet
}

func NewValidator(rules *RuleSet) *Validator {
	return &Validator{rules: rules}
}

// Validate runs a Validator without a compiled-rule cache
func Validate(groups []model.GroupedProjectQuestions) ValidationResult {
	return NewValidator(nil).Validate(groups)
}

// Validate checks every visible question. Hidden questions and empty
// optional fields are skipped. Errors come out in section, subsection,
// question, field order.
func (v *Validator) Validate(groups []model.GroupedProjectQuestions) ValidationResult {
	lookup := indexQuestions(groups)
	errs := make([]model.ValidationError, 0)

	out := make([]model.GroupedProjectQuestions, len(groups))
	for gi, g := range groups {
		subs := make([]model.SubSection, len(g.SubSections))
		for si, sub := range g.SubSections {
			qs := make([]model.Question, len(sub.Questions))
			for qi, q := range sub.Questions {
				qs[qi] = v.validateQuestion(g.Section, sub.Name, q, lookup, &errs)
			}
			subs[si] = model.SubSection{Name: sub.Name, Questions: qs}
		}
		out[gi] = model.GroupedProjectQuestions{
			Section:         g.Section,
			SubSectionNames: g.SubSectionNames,
			SubSections:     subs,
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs, Groups: out}
}

func (v *Validator) validateQuestion(section, subSection string, q model.Question, lookup questionLookup, errs *[]model.ValidationError) model.Question {
	visible := shouldRender(q, lookup)

	var fields []model.Field
	if len(q.Fields) > 0 {
		fields = make([]model.Field, len(q.Fields))
		copy(fields, q.Fields)
	}

	for i, f := range q.DeclaredFields() {
		reason, message := "", ""
		if visible {
			reason, message = v.checkField(f)
		}
		invalid := reason != ""
		if invalid {
			*errs = append(*errs, model.ValidationError{
				Section:      section,
				SubSection:   subSection,
				QuestionID:   q.ID,
				FieldKey:     f.Key,
				QuestionText: q.Text,
				InputType:    f.Type,
				Required:     f.Required,
				Value:        f.Value,
				Reason:       reason,
				Message:      message,
			})
		}
		if i == 0 {
			q.Invalid = invalid
		} else {
			fields[i-1].Invalid = invalid
		}
	}
	q.Fields = fields
	return q
}

// checkField returns an empty reason when f passes
func (v *Validator) checkField(f model.Field) (reason, message string) {
	empty := f.Value.IsEmpty()
	if !f.Required && empty {
		return "", ""
	}

	switch {
	case f.Type.IsText():
		if empty {
			return model.ReasonMissingRequired, ""
		}
		if rule, ok := v.rules.Check(f.Validations, f.Value.Text); !ok {
			return model.ReasonFailedValidation, rule.Message
		}
	case f.Type.IsChoice():
		if empty {
			return model.ReasonMissingRequired, ""
		}
		for _, val := range f.Value.OptionValues() {
			if rule, ok := v.rules.Check(f.Validations, val); !ok {
				return model.ReasonFailedValidation, rule.Message
			}
		}
	default:
		if empty {
			return model.ReasonMissingRequired, ""
		}
	}
	return "", ""
}

// ErrorsBySection groups errors by section, keeping first-seen section order
func ErrorsBySection(errs []model.ValidationError) []SectionErrors {
	var out []SectionErrors
	idx := make(map[string]int)
	for _, e := range errs {
		i, ok := idx[e.Section]
		if !ok {
			i = len(out)
			idx[e.Section] = i
			out = append(out, SectionErrors{Section: e.Section})
		}
		out[i].Errors = append(out[i].Errors, e)
	}
	return out
}
