package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// ValueKind tags which member of Value holds the answer
type ValueKind uint8

const (
	KindText ValueKind = iota
	KindOptions
	KindFiles
	KindMembers
)

// Option is one selectable choice of a select/multiselect question
type Option struct {
	Label string `json:"label" msgpack:"label"`
	Value string `json:"value" msgpack:"value"`
}

// FileRecord is an uploaded document attached to a file field
type FileRecord struct {
	ID       string `json:"id" msgpack:"id"`
	Name     string `json:"name" msgpack:"name"`
	URL      string `json:"url,omitempty" msgpack:"url,omitempty"`
	MimeType string `json:"mimeType,omitempty" msgpack:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty" msgpack:"size,omitempty"`
}

// TeamMember is one entry of a team question
type TeamMember struct {
	ID       string `json:"id,omitempty" msgpack:"id,omitempty"`
	Name     string `json:"name" msgpack:"name"`
	Role     string `json:"role,omitempty" msgpack:"role,omitempty"`
	Email    string `json:"email,omitempty" msgpack:"email,omitempty"`
	LinkedIn string `json:"linkedIn,omitempty" msgpack:"linkedIn,omitempty"`
}

// Value is a question's answer. The zero Value is an empty text answer.
// On the wire it is a string for text kinds and an array for the others.
type Value struct {
	Kind    ValueKind    `msgpack:"kind"`
	Text    string       `msgpack:"text,omitempty"`
	Options []Option     `msgpack:"options,omitempty"`
	Files   []FileRecord `msgpack:"files,omitempty"`
	Members []TeamMember `msgpack:"members,omitempty"`
}

func TextValue(s string) Value {
	return Value{Kind: KindText, Text: s}
}

func OptionsValue(opts ...Option) Value {
	return Value{Kind: KindOptions, Options: opts}
}

func FilesValue(files ...FileRecord) Value {
	return Value{Kind: KindFiles, Files: files}
}

func MembersValue(members ...TeamMember) Value {
	return Value{Kind: KindMembers, Members: members}
}

// EmptyValue returns the empty answer for an input type
func EmptyValue(t InputType) Value {
	return Value{Kind: kindFor(t)}
}

func kindFor(t InputType) ValueKind {
	switch t {
	case InputSelect, InputMultiSelect:
		return KindOptions
	case InputFile:
		return KindFiles
	case InputTeam:
		return KindMembers
	default:
		return KindText
	}
}

// InputType returns an input type whose answers have this kind. It lets a
// stored answer be decoded again without its question.
func (k ValueKind) InputType() InputType {
	switch k {
	case KindOptions:
		return InputMultiSelect
	case KindFiles:
		return InputFile
	case KindMembers:
		return InputTeam
	default:
		return InputTextArea
	}
}

// IsList reports whether the answer is array-shaped
func (v Value) IsList() bool {
	return v.Kind != KindText
}

// Len is the number of elements of a list answer, or 0 for text
func (v Value) Len() int {
	switch v.Kind {
	case KindOptions:
		return len(v.Options)
	case KindFiles:
		return len(v.Files)
	case KindMembers:
		return len(v.Members)
	default:
		return 0
	}
}

// IsEmpty is the falsy check: "" for text, no elements for lists.
func (v Value) IsEmpty() bool {
	if v.Kind == KindText {
		return v.Text == ""
	}
	return v.Len() == 0
}

// IsBlank is IsEmpty with whitespace-only text counted as empty.
func (v Value) IsBlank() bool {
	if v.Kind == KindText {
		return strings.TrimSpace(v.Text) == ""
	}
	return v.IsEmpty()
}

// OptionValues returns the Value of every selected option
func (v Value) OptionValues() []string {
	out := make([]string, 0, len(v.Options))
	for _, o := range v.Options {
		out = append(out, o.Value)
	}
	return out
}

func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindOptions:
		return slices.Equal(v.Options, o.Options)
	case KindFiles:
		return slices.Equal(v.Files, o.Files)
	case KindMembers:
		return slices.Equal(v.Members, o.Members)
	default:
		return v.Text == o.Text
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindOptions:
		return marshalList(v.Options)
	case KindFiles:
		return marshalList(v.Files)
	case KindMembers:
		return marshalList(v.Members)
	default:
		return json.Marshal(v.Text)
	}
}

// marshalList writes nil slices as [] so the shape never depends on emptiness
func marshalList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

// DecodeValue decodes a raw JSON answer for a field of type t. null and an
// absent value decode to the empty answer. Choice fields also accept a bare
// string, which becomes a single option.
func DecodeValue(t InputType, raw json.RawMessage) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return EmptyValue(t), nil
	}

	switch kindFor(t) {
	case KindOptions:
		if raw[0] == '"' {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return Value{}, fmt.Errorf("decode %s value: %w", t, err)
			}
			if s == "" {
				return EmptyValue(t), nil
			}
			return OptionsValue(Option{Label: s, Value: s}), nil
		}
		var opts []Option
		if err := json.Unmarshal(raw, &opts); err != nil {
			return Value{}, fmt.Errorf("decode %s value: %w", t, err)
		}
		return OptionsValue(opts...), nil
	case KindFiles:
		var files []FileRecord
		if err := json.Unmarshal(raw, &files); err != nil {
			return Value{}, fmt.Errorf("decode %s value: %w", t, err)
		}
		return FilesValue(files...), nil
	case KindMembers:
		var members []TeamMember
		if err := json.Unmarshal(raw, &members); err != nil {
			return Value{}, fmt.Errorf("decode %s value: %w", t, err)
		}
		return MembersValue(members...), nil
	default:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, fmt.Errorf("decode %s value: %w", t, err)
		}
		return TextValue(s), nil
	}
}
