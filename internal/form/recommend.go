package form

import "launchpad/internal/model"

// CollectRecommended lists optional fields of visible questions that were
// left empty. Only text, date and choice fields are considered.
func CollectRecommended(groups []model.GroupedProjectQuestions) []model.RecommendedField {
	lookup := indexQuestions(groups)
	out := make([]model.RecommendedField, 0)

	for _, g := range groups {
		for _, sub := range g.SubSections {
			for _, q := range sub.Questions {
				if !shouldRender(q, lookup) {
					continue
				}
				for _, f := range q.DeclaredFields() {
					if f.Required || !isRecommendEmpty(f) {
						continue
					}
					out = append(out, model.RecommendedField{
						Section:      g.Section,
						SubSection:   sub.Name,
						QuestionID:   q.ID,
						FieldKey:     f.Key,
						QuestionText: q.Text,
						InputType:    f.Type,
					})
				}
			}
		}
	}
	return out
}

func isRecommendEmpty(f model.Field) bool {
	switch f.Type {
	case model.InputTextInput, model.InputTextArea:
		return f.Value.IsBlank()
	case model.InputDate:
		return f.Value.Text == ""
	case model.InputSelect, model.InputMultiSelect:
		return f.Value.Len() == 0
	default:
		return false
	}
}
