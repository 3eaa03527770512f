package form

import "errors"

var ErrSectionNotFound = errors.New("section not found")

type ScrollKind string

const (
	ScrollTop    ScrollKind = "top"
	ScrollAnchor ScrollKind = "anchor"
)

// Scroll is performed by the client once the new step has rendered
type Scroll struct {
	Kind       ScrollKind `json:"kind"`
	Anchor     string     `json:"anchor,omitempty"`
	QuestionID string     `json:"questionId,omitempty"`
}

// StepChange is emitted for every navigation, including a jump to the
// step already shown.
type StepChange struct {
	From    int    `json:"from"`
	To      int    `json:"to"`
	Section string `json:"section"`
	Scroll  Scroll `json:"scroll"`
}

// Navigator tracks the current step. It saturates at both ends. A form
// with no sections stays at step 0 and never moves.
type Navigator struct {
	sections []string
	current  int
}

func NewNavigator(sections []string) *Navigator {
	return &Navigator{sections: sections}
}

func (n *Navigator) Current() int { return n.current }

func (n *Navigator) Count() int { return len(n.sections) }

// Section is the name of the current step, or "" for an empty form
func (n *Navigator) Section() string {
	if n.current < len(n.sections) {
		return n.sections[n.current]
	}
	return ""
}

func (n *Navigator) IsLast() bool {
	return n.current >= len(n.sections)-1
}

// Next advances one step. ok is false at the last step.
func (n *Navigator) Next() (change StepChange, ok bool) {
	if n.IsLast() {
		return StepChange{}, false
	}
	return n.move(n.current+1, Scroll{Kind: ScrollTop}), true
}

// Back goes one step back. ok is false at step 0.
func (n *Navigator) Back() (change StepChange, ok bool) {
	if n.current == 0 {
		return StepChange{}, false
	}
	return n.move(n.current-1, Scroll{Kind: ScrollTop}), true
}

// GoTo moves to step, clamped into range
func (n *Navigator) GoTo(step int) StepChange {
	if len(n.sections) == 0 {
		return StepChange{Scroll: Scroll{Kind: ScrollTop}}
	}
	step = max(0, min(step, len(n.sections)-1))
	return n.move(step, Scroll{Kind: ScrollTop})
}

// JumpToError moves to the step holding section and asks the client to
// scroll to anchor once that step is on screen.
func (n *Navigator) JumpToError(section, anchor, questionID string) (StepChange, error) {
	for i, name := range n.sections {
		if name == section {
			return n.move(i, Scroll{Kind: ScrollAnchor, Anchor: anchor, QuestionID: questionID}), nil
		}
	}
	return StepChange{}, ErrSectionNotFound
}

func (n *Navigator) move(to int, scroll Scroll) StepChange {
	change := StepChange{From: n.current, To: to, Section: n.sections[to], Scroll: scroll}
	n.current = to
	return change
}
