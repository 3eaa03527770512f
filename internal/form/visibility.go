package form

import (
	"strings"

	"launchpad/internal/model"
)

type questionLookup func(id string) (model.Question, bool)

// ShouldRenderQuestion reports whether q is visible given the answers in
// groups. The dependent question is searched for across the whole tree.
// A missing dependency, a disabled condition or an unknown condition kind
// all render.
func ShouldRenderQuestion(q model.Question, groups []model.GroupedProjectQuestions) bool {
	return shouldRender(q, func(id string) (model.Question, bool) {
		dep, _, ok := FindQuestion(groups, id)
		return dep, ok
	})
}

// Visibility evaluates ShouldRenderQuestion for every question in the tree
func Visibility(groups []model.GroupedProjectQuestions) map[string]bool {
	lookup := indexQuestions(groups)
	out := make(map[string]bool)
	Walk(groups, func(_ int, _ string, q model.Question) bool {
		out[q.ID] = shouldRender(q, lookup)
		return true
	})
	return out
}

func indexQuestions(groups []model.GroupedProjectQuestions) questionLookup {
	idx := make(map[string]model.Question)
	Walk(groups, func(_ int, _ string, q model.Question) bool {
		idx[q.ID] = q
		return true
	})
	return func(id string) (model.Question, bool) {
		q, ok := idx[id]
		return q, ok
	}
}

func shouldRender(q model.Question, lookup questionLookup) bool {
	if q.DependentQuestionID == "" || !q.ConditionType.Valid {
		return true
	}
	dep, ok := lookup(q.DependentQuestionID)
	if !ok {
		return true
	}
	return evaluateCondition(q.ConditionType.Kind, dep.Value, q.ConditionValue)
}

func evaluateCondition(kind model.ConditionKind, answer model.Value, want string) bool {
	switch kind {
	case model.ConditionEmpty:
		return answer.IsEmpty()
	case model.ConditionNotEmpty:
		return !answer.IsEmpty()
	case model.ConditionEquals:
		return answerEquals(answer, want)
	case model.ConditionContains:
		return answerContains(answer, want)
	case model.ConditionUnknown:
		return true
	default:
		return true
	}
}

// answerEquals requires every selected option to equal want. An empty
// selection is never equal.
func answerEquals(answer model.Value, want string) bool {
	switch answer.Kind {
	case model.KindText:
		return answer.Text == want
	case model.KindOptions:
		if len(answer.Options) == 0 {
			return false
		}
		for _, o := range answer.Options {
			if o.Value != want {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func answerContains(answer model.Value, want string) bool {
	switch answer.Kind {
	case model.KindText:
		return strings.Contains(answer.Text, want)
	case model.KindOptions:
		for _, o := range answer.Options {
			if o.Value == want {
				return true
			}
		}
		return false
	default:
		return false
	}
}
