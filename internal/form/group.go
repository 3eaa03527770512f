package form

import (
	"sort"

	"launchpad/internal/model"
)

type sectionAcc struct {
	name     string
	minOrder int
	subs     []*subSectionAcc
	byName   map[string]*subSectionAcc
}

type subSectionAcc struct {
	name      string
	minOrder  int
	questions []model.Question
}

// GroupProjectQuestions turns the flat question list into sections of
// subsections. Sections sort by the smallest sectionOrder among their
// questions, subsections by the smallest subSectionOrder, questions by
// questionOrder. Ties keep declaration order.
func GroupProjectQuestions(questions []model.Question) []model.GroupedProjectQuestions {
	var sections []*sectionAcc
	bySection := make(map[string]*sectionAcc)

	for _, q := range questions {
		sec, ok := bySection[q.Section]
		if !ok {
			sec = &sectionAcc{name: q.Section, minOrder: q.SectionOrder, byName: make(map[string]*subSectionAcc)}
			bySection[q.Section] = sec
			sections = append(sections, sec)
		}
		sec.minOrder = min(sec.minOrder, q.SectionOrder)

		sub, ok := sec.byName[q.SubSection]
		if !ok {
			sub = &subSectionAcc{name: q.SubSection, minOrder: q.SubSectionOrder}
			sec.byName[q.SubSection] = sub
			sec.subs = append(sec.subs, sub)
		}
		sub.minOrder = min(sub.minOrder, q.SubSectionOrder)
		sub.questions = append(sub.questions, q)
	}

	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].minOrder < sections[j].minOrder
	})

	groups := make([]model.GroupedProjectQuestions, 0, len(sections))
	for _, sec := range sections {
		sort.SliceStable(sec.subs, func(i, j int) bool {
			return sec.subs[i].minOrder < sec.subs[j].minOrder
		})

		group := model.GroupedProjectQuestions{
			Section:         sec.name,
			SubSectionNames: make([]string, 0, len(sec.subs)),
			SubSections:     make([]model.SubSection, 0, len(sec.subs)),
		}
		for _, sub := range sec.subs {
			qs := sub.questions
			sort.SliceStable(qs, func(i, j int) bool {
				return qs[i].QuestionOrder < qs[j].QuestionOrder
			})
			group.SubSectionNames = append(group.SubSectionNames, sub.name)
			group.SubSections = append(group.SubSections, model.SubSection{Name: sub.name, Questions: qs})
		}
		groups = append(groups, group)
	}
	return groups
}

// SectionNames lists the section of every step in order
func SectionNames(groups []model.GroupedProjectQuestions) []string {
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.Section
	}
	return names
}

// Walk calls fn for every question in traversal order: sections, then
// subsections, then questions. Returning false stops the walk.
func Walk(groups []model.GroupedProjectQuestions, fn func(step int, sub string, q model.Question) bool) {
	for step, g := range groups {
		for _, sub := range g.SubSections {
			for _, q := range sub.Questions {
				if !fn(step, sub.Name, q) {
					return
				}
			}
		}
	}
}

// FindQuestion locates a question anywhere in the tree
func FindQuestion(groups []model.GroupedProjectQuestions, id string) (q model.Question, step int, ok bool) {
	Walk(groups, func(s int, _ string, candidate model.Question) bool {
		if candidate.ID == id {
			q, step, ok = candidate, s, true
			return false
		}
		return true
	})
	return q, step, ok
}
