package form

import (
	"testing"

	"github.com/stretchr/testify/require"

	"launchpad/internal/model"
)

func textQuestion(id, section string, order int, required bool) model.Question {
	return model.Question{
		ID:            id,
		Text:          "Question " + id,
		Section:       section,
		SubSection:    "General",
		SectionOrder:  order,
		QuestionOrder: 1,
		InputType:     model.InputTextInput,
		Required:      required,
	}
}

func dependsOn(q model.Question, depID string, kind model.ConditionKind, value string) model.Question {
	q.DependentQuestionID = depID
	q.ConditionType = model.ConditionType{Kind: kind, Valid: true}
	q.ConditionValue = value
	return q
}

func withValue(q model.Question, v model.Value) model.Question {
	q.Value = v
	return q
}

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	rules, err := NewRuleSet(128)
	require.NoError(t, err)
	return NewValidator(rules)
}

func opt(v string) model.Option {
	return model.Option{Label: v, Value: v}
}
