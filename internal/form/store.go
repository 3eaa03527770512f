package form

import (
	"errors"
	"fmt"

	"launchpad/internal/model"
)

var (
	ErrQuestionNotFound = errors.New("question not found")
	ErrFieldNotFound    = errors.New("field not found")
	ErrNotInActiveStep  = errors.New("question is not in the active step")
	ErrValueKind        = errors.New("value does not match field type")
)

// Change is the outcome of one SetFieldValue call
type Change struct {
	// Changed is false when the value equals the stored one
	Changed bool
	// File marks a write to a file-typed field
	File  bool
	Draft model.ProjectDraft
}

// Store holds the grouped question tree and the current step. Every write
// builds a new tree; trees handed out earlier are never modified. Store is
// not safe for concurrent use.
type Store struct {
	groups []model.GroupedProjectQuestions
	nav    *Navigator
}

func NewStore(groups []model.GroupedProjectQuestions) *Store {
	return &Store{groups: groups, nav: NewNavigator(SectionNames(groups))}
}

// Groups returns the current tree. Callers must treat it as read-only.
func (s *Store) Groups() []model.GroupedProjectQuestions { return s.groups }

func (s *Store) Navigator() *Navigator { return s.nav }

func (s *Store) Step() int { return s.nav.Current() }

// CurrentGroup is the section shown at the current step
func (s *Store) CurrentGroup() (model.GroupedProjectQuestions, bool) {
	if s.nav.Current() >= len(s.groups) {
		return model.GroupedProjectQuestions{}, false
	}
	return s.groups[s.nav.Current()], true
}

// Replace swaps in a tree with the same shape, e.g. one carrying fresh
// Invalid flags from validation.
func (s *Store) Replace(groups []model.GroupedProjectQuestions) {
	s.groups = groups
}

// SetFieldValue writes v into a field of a question on the current step.
// Questions on other steps are rejected with ErrNotInActiveStep.
func (s *Store) SetFieldValue(questionID, fieldKey string, v model.Value) (Change, error) {
	q, step, ok := FindQuestion(s.groups, questionID)
	if !ok {
		return Change{}, ErrQuestionNotFound
	}
	if step != s.nav.Current() {
		return Change{}, ErrNotInActiveStep
	}
	return s.write(q, step, fieldKey, v)
}

// Apply writes a draft regardless of the current step. It is used to replay
// pending drafts when a session resumes.
func (s *Store) Apply(d model.ProjectDraft) (Change, error) {
	q, step, ok := FindQuestion(s.groups, d.QuestionID)
	if !ok {
		return Change{}, ErrQuestionNotFound
	}
	return s.write(q, step, d.FieldKey, d.Answer)
}

func (s *Store) write(q model.Question, step int, fieldKey string, v model.Value) (Change, error) {
	if fieldKey == "" {
		fieldKey = model.PrimaryField
	}
	ft, ok := q.FieldType(fieldKey)
	if !ok {
		return Change{}, fmt.Errorf("%w: %s/%s", ErrFieldNotFound, q.ID, fieldKey)
	}
	if model.EmptyValue(ft).Kind != v.Kind {
		return Change{}, fmt.Errorf("%w: %s/%s is %s", ErrValueKind, q.ID, fieldKey, ft)
	}

	change := Change{
		File:  q.IsFileField(fieldKey),
		Draft: model.ProjectDraft{QuestionID: q.ID, FieldKey: fieldKey, Answer: v},
	}
	current, _ := q.FieldValue(fieldKey)
	if current.Equal(v) {
		return change, nil
	}

	updated, _ := q.WithFieldValue(fieldKey, v)
	s.groups = replaceQuestion(s.groups, step, updated)
	change.Changed = true
	return change, nil
}

// replaceQuestion copies the path from the root to q and shares everything else
func replaceQuestion(groups []model.GroupedProjectQuestions, step int, q model.Question) []model.GroupedProjectQuestions {
	out := make([]model.GroupedProjectQuestions, len(groups))
	copy(out, groups)

	g := out[step]
	subs := make([]model.SubSection, len(g.SubSections))
	copy(subs, g.SubSections)
	for i, sub := range subs {
		for j, candidate := range sub.Questions {
			if candidate.ID != q.ID {
				continue
			}
			qs := make([]model.Question, len(sub.Questions))
			copy(qs, sub.Questions)
			qs[j] = q
			subs[i].Questions = qs
		}
	}
	g.SubSections = subs
	out[step] = g
	return out
}
