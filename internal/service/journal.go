package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"launchpad/internal/model"
	"launchpad/internal/repository"
)

// flushJournal stores rejected autosave batches so they can be replayed
type flushJournal struct {
	repo      repository.FlushJournalRepo
	founderID string
}

func newFlushJournal(repo repository.FlushJournalRepo, founderID string) *flushJournal {
	return &flushJournal{repo: repo, founderID: founderID}
}

func (j *flushJournal) RecordFailure(ctx context.Context, projectID string, drafts []model.ProjectDraft, cause error, restored bool) error {
	entries, err := JournalEntries(drafts)
	if err != nil {
		return err
	}
	failure := &model.FlushFailure{
		ProjectID: projectID,
		FounderID: j.founderID,
		Entries:   entries,
		Restored:  restored,
		FailedAt:  time.Now(),
	}
	if cause != nil {
		failure.Error = cause.Error()
	}
	return j.repo.Create(ctx, failure)
}

// JournalEntries converts drafts into their stored form
func JournalEntries(drafts []model.ProjectDraft) ([]model.JournalEntry, error) {
	entries := make([]model.JournalEntry, 0, len(drafts))
	for _, d := range drafts {
		answer, err := json.Marshal(d.Answer)
		if err != nil {
			return nil, fmt.Errorf("encode answer %s: %w", d.Key(), err)
		}
		entries = append(entries, model.JournalEntry{
			QuestionID: d.QuestionID,
			FieldKey:   d.FieldKey,
			InputType:  string(d.Answer.Kind.InputType()),
			Answer:     string(answer),
		})
	}
	return entries, nil
}

// DraftsFromJournal is the inverse of JournalEntries
func DraftsFromJournal(entries []model.JournalEntry) ([]model.ProjectDraft, error) {
	drafts := make([]model.ProjectDraft, 0, len(entries))
	for _, e := range entries {
		v, err := model.DecodeValue(model.InputType(e.InputType), json.RawMessage(e.Answer))
		if err != nil {
			return nil, fmt.Errorf("decode journaled answer %s: %w", model.DraftKey(e.QuestionID, e.FieldKey), err)
		}
		drafts = append(drafts, model.ProjectDraft{QuestionID: e.QuestionID, FieldKey: e.FieldKey, Answer: v})
	}
	return drafts, nil
}

// ReplayReport summarizes one Replay run
type ReplayReport struct {
	Replayed int
	Drafts   int
	Skipped  int
}

// Replay re-sends journaled batches of a project to the backend, oldest
// first, and marks each one replayed after the backend accepts it. It stops
// at the first rejected batch so newer answers are never overwritten by
// older ones. Batches that were kept pending in their session are skipped
// unless includeRestored is set, since the session saved them itself.
func Replay(ctx context.Context, repo repository.FlushJournalRepo, backend Backend, token, projectID string, includeRestored bool) (ReplayReport, error) {
	var report ReplayReport

	failures, err := repo.ListUnreplayed(ctx, projectID)
	if err != nil {
		return report, fmt.Errorf("list journal: %w", err)
	}

	for _, f := range failures {
		if f.Restored && !includeRestored {
			report.Skipped++
			continue
		}
		drafts, err := DraftsFromJournal(f.Entries)
		if err != nil {
			return report, fmt.Errorf("journal entry %s: %w", f.ID, err)
		}
		if len(drafts) > 0 {
			if err := backend.SaveDraft(ctx, token, projectID, drafts); err != nil {
				return report, fmt.Errorf("replay %s: %w", f.ID, err)
			}
		}
		if err := repo.MarkReplayed(ctx, f.ID); err != nil {
			return report, fmt.Errorf("mark %s replayed: %w", f.ID, err)
		}
		report.Replayed++
		report.Drafts += len(drafts)
	}
	return report, nil
}
