package form

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchpad/internal/model"
)

func twoStepStore() *Store {
	deck := textQuestion("pitch", "Company", 1, false)
	deck.InputType = model.InputTextArea
	deck.Fields = []model.Field{{Key: "deck", Type: model.InputFile, Value: model.EmptyValue(model.InputFile)}}

	return NewStore(GroupProjectQuestions([]model.Question{
		textQuestion("name", "Company", 1, true),
		deck,
		textQuestion("revenue", "Financials", 2, true),
	}))
}

func TestStoreSetFieldValue(t *testing.T) {
	s := twoStepStore()
	before := s.Groups()

	change, err := s.SetFieldValue("name", "", model.TextValue("Acme"))
	require.NoError(t, err)
	assert.True(t, change.Changed)
	assert.False(t, change.File)
	assert.Equal(t, model.ProjectDraft{QuestionID: "name", FieldKey: model.PrimaryField, Answer: model.TextValue("Acme")}, change.Draft)

	q, _, _ := FindQuestion(s.Groups(), "name")
	assert.Equal(t, "Acme", q.Value.Text)

	old, _, _ := FindQuestion(before, "name")
	assert.Equal(t, "", old.Value.Text, "previous tree must not change")
}

func TestStoreSetFieldValue_SameValueIsNoop(t *testing.T) {
	s := twoStepStore()
	_, err := s.SetFieldValue("name", "", model.TextValue("Acme"))
	require.NoError(t, err)
	tree := s.Groups()

	change, err := s.SetFieldValue("name", model.PrimaryField, model.TextValue("Acme"))
	require.NoError(t, err)
	assert.False(t, change.Changed)
	assert.Equal(t, tree, s.Groups())
}

func TestStoreSetFieldValue_FileField(t *testing.T) {
	s := twoStepStore()

	change, err := s.SetFieldValue("pitch", "deck", model.FilesValue(model.FileRecord{ID: "doc-1", Name: "deck.pdf"}))
	require.NoError(t, err)
	assert.True(t, change.File)
	assert.Equal(t, "deck", change.Draft.FieldKey)

	change, err = s.SetFieldValue("pitch", "", model.TextValue("We build rockets"))
	require.NoError(t, err)
	assert.False(t, change.File)
}

func TestStoreSetFieldValue_OutsideActiveStep(t *testing.T) {
	s := twoStepStore()

	_, err := s.SetFieldValue("revenue", "", model.TextValue("100"))
	assert.ErrorIs(t, err, ErrNotInActiveStep)

	_, ok := s.Navigator().Next()
	require.True(t, ok)
	_, err = s.SetFieldValue("revenue", "", model.TextValue("100"))
	assert.NoError(t, err)
	_, err = s.SetFieldValue("name", "", model.TextValue("late write"))
	assert.ErrorIs(t, err, ErrNotInActiveStep)
}

func TestStoreSetFieldValue_Errors(t *testing.T) {
	s := twoStepStore()

	_, err := s.SetFieldValue("ghost", "", model.TextValue("x"))
	assert.ErrorIs(t, err, ErrQuestionNotFound)

	_, err = s.SetFieldValue("pitch", "video", model.TextValue("x"))
	assert.ErrorIs(t, err, ErrFieldNotFound)

	_, err = s.SetFieldValue("pitch", "deck", model.TextValue("x"))
	assert.ErrorIs(t, err, ErrValueKind)
}

func TestStoreApplyIgnoresStep(t *testing.T) {
	s := twoStepStore()

	change, err := s.Apply(model.ProjectDraft{QuestionID: "revenue", Answer: model.TextValue("250k")})
	require.NoError(t, err)
	assert.True(t, change.Changed)

	q, _, _ := FindQuestion(s.Groups(), "revenue")
	assert.Equal(t, "250k", q.Value.Text)
	assert.Equal(t, 0, s.Step())
}

func TestStoreEditClearsInvalid(t *testing.T) {
	s := twoStepStore()
	result := newTestValidator(t).Validate(s.Groups())
	s.Replace(result.Groups)

	q, _, _ := FindQuestion(s.Groups(), "name")
	require.True(t, q.Invalid)

	_, err := s.SetFieldValue("name", "", model.TextValue("Acme"))
	require.NoError(t, err)
	q, _, _ = FindQuestion(s.Groups(), "name")
	assert.False(t, q.Invalid)
}
