package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rzbill/labeld/internal/docstore"
	"github.com/rzbill/labeld/internal/scorestore"
	"github.com/rzbill/labeld/pkg/log"
)

// SubmitMCQ records one worker's multiple-choice answers (questionIndex ->
// chosen option) for a datapoint, then runs the completion check and
// releases the worker's hold on the MCQ entry.
//
// Completion keys off the first question's answer count reaching the
// quorum: questions are answered in lock-step per round, so question 0 is
// the reference point for the whole datapoint.
// TODO: confirm with product whether the question-0 trigger should become
// per-question once rounds stop being lock-step.
func (e *Engine) SubmitMCQ(ctx context.Context, taskID string, answers map[int]string, workerID string) error {
	if taskID == "" || workerID == "" || len(answers) == 0 {
		return fmt.Errorf("%w: datapoint ID, answers, and worker ID are required", ErrInvalidRequest)
	}

	ops := make([]docstore.Update, 0, len(answers))
	for idx, choice := range answers {
		ops = append(ops, docstore.Update{
			Kind:     docstore.UpdateAppendMCQ,
			TaskID:   taskID,
			SubIndex: idx,
			Answer:   docstore.Answer{Text: choice, WorkerID: workerID},
		})
	}
	modified, err := e.docs.BulkApply(ctx, ops)
	if err != nil {
		return fmt.Errorf("%w: record answers: %v", ErrBatchFailed, err)
	}
	if modified == 0 {
		return fmt.Errorf("%w: no matching questions to update", ErrInvalidRequest)
	}

	d, err := e.docs.FindByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("%w: reload datapoint: %v", ErrBatchFailed, err)
	}

	if d.HasQuestion(0) && len(d.PreLabel.Questions[0].MCQAnswers) >= e.quorum {
		if err := e.evaluateMCQCompletion(ctx, d); err != nil {
			return err
		}
	}

	// Release this worker's hold regardless of the flag outcome.
	return e.releaseEntry(ctx, scorestore.QueueMCQ, taskID, -1, false)
}

// evaluateMCQCompletion inspects every question of the datapoint: a
// question with fewer than two affirmative answers has no usable consensus
// and is flagged for free-text review. Flagged questions are promoted into
// the text queue; a clean sweep moves the datapoint straight to consensus.
func (e *Engine) evaluateMCQCompletion(ctx context.Context, d *docstore.Datapoint) error {
	var flagged []int
	for idx, q := range d.PreLabel.Questions {
		affirmative := 0
		for _, a := range q.MCQAnswers {
			if a.Text == e.affirmative {
				affirmative++
			}
		}
		if affirmative <= 1 {
			flagged = append(flagged, idx)
		}
	}

	if len(flagged) == 0 {
		if err := e.docs.SetStatus(ctx, d.ID, docstore.StatusConsensus); err != nil {
			return fmt.Errorf("%w: set consensus status: %v", ErrBatchFailed, err)
		}
		e.notify.Enqueue(d.ID)
		return nil
	}

	flagOps := make([]docstore.Update, 0, len(flagged))
	for _, idx := range flagged {
		flagOps = append(flagOps, docstore.Update{
			Kind:     docstore.UpdateSetFlag,
			TaskID:   d.ID,
			SubIndex: idx,
			Flagged:  true,
			Status:   docstore.StatusLiveLabelText,
		})
	}
	// Submissions past the quorum re-run this evaluation, so insert only
	// questions not already in the text queue: a present entry may carry a
	// live in-flight count that a fresh insert would wipe out.
	err := e.queues.Update(ctx, scorestore.QueueText, scorestore.ScoreAsc, func(entries []scorestore.Entry) ([]scorestore.Op, error) {
		present := make(map[int]struct{})
		for _, entry := range entries {
			if entry.TaskID == d.ID {
				present[entry.SubIndex] = struct{}{}
			}
		}
		var ops []scorestore.Op
		for _, idx := range flagged {
			if _, ok := present[idx]; ok {
				continue
			}
			ops = append(ops, scorestore.Op{Kind: scorestore.OpInsert, Entry: scorestore.Entry{
				TaskID:   d.ID,
				SubIndex: idx,
				InFlight: 0,
				Score:    e.scores.Txt(0),
			}})
		}
		return ops, nil
	})
	if err != nil {
		return fmt.Errorf("%w: promote flagged questions: %v", ErrBatchFailed, err)
	}
	if _, err := e.docs.BulkApply(ctx, flagOps); err != nil {
		return fmt.Errorf("%w: flag questions: %v", ErrBatchFailed, err)
	}
	e.logger.Info("questions flagged for text review",
		log.F("task_id", d.ID),
		log.F("flagged", len(flagged)),
	)
	return nil
}

// SubmitText records one worker's free-text answer for a flagged question,
// unflags the question once it reaches the quorum, checks whether the
// datapoint's flagged questions are collectively complete, and releases the
// worker's hold on the text entry. Returns ErrNotFound when the text queue
// has no matching entry (the answer itself may still have been recorded).
func (e *Engine) SubmitText(ctx context.Context, taskID string, questionIndex int, text, workerID string) error {
	if taskID == "" || workerID == "" || text == "" || questionIndex < 0 {
		return fmt.Errorf("%w: datapoint ID, question index, text, and worker ID are required", ErrInvalidRequest)
	}

	modified, err := e.docs.BulkApply(ctx, []docstore.Update{{
		Kind:     docstore.UpdateAppendText,
		TaskID:   taskID,
		SubIndex: questionIndex,
		Answer:   docstore.Answer{Text: text, WorkerID: workerID},
	}})
	if err != nil {
		return fmt.Errorf("%w: record answer: %v", ErrBatchFailed, err)
	}
	if modified == 0 {
		return fmt.Errorf("%w: datapoint or question not found", ErrNotFound)
	}

	// Snapshot after the append, before the unflag: the completion math
	// below intentionally runs against this view, so a question completing
	// right now still counts as flagged in this round's totals.
	d, err := e.docs.FindByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("%w: reload datapoint: %v", ErrBatchFailed, err)
	}

	if len(d.PreLabel.Questions[questionIndex].TextAnswers) >= e.quorum {
		if _, err := e.docs.BulkApply(ctx, []docstore.Update{{
			Kind:     docstore.UpdateSetFlag,
			TaskID:   taskID,
			SubIndex: questionIndex,
			Flagged:  false,
		}}); err != nil {
			return fmt.Errorf("%w: unflag question: %v", ErrBatchFailed, err)
		}
	}

	flaggedCount := 0
	totalTextAnswers := 0
	for _, q := range d.PreLabel.Questions {
		if q.IsFlagged {
			flaggedCount++
			totalTextAnswers += len(q.TextAnswers)
		}
	}
	if flaggedCount > 0 && totalTextAnswers >= flaggedCount*e.quorum {
		if err := e.docs.SetStatus(ctx, taskID, docstore.StatusConsensus); err != nil {
			return fmt.Errorf("%w: set consensus status: %v", ErrBatchFailed, err)
		}
		e.notify.Enqueue(taskID)
	}

	return e.releaseEntry(ctx, scorestore.QueueText, taskID, questionIndex, true)
}

// releaseEntry decrements the entry's in-flight counter (floor 0) and
// deletes its lease when this release is the last holder departing.
// missingIsError controls the text-path "not found" signal; the MCQ path
// tolerates a missing entry.
func (e *Engine) releaseEntry(ctx context.Context, q scorestore.Queue, taskID string, subIndex int, missingIsError bool) error {
	order := scorestore.ScoreDesc
	if q == scorestore.QueueText {
		order = scorestore.ScoreAsc
	}

	prior := -1
	err := e.queues.Update(ctx, q, order, func(entries []scorestore.Entry) ([]scorestore.Op, error) {
		for _, entry := range entries {
			if entry.TaskID != taskID || entry.SubIndex != subIndex {
				continue
			}
			prior = entry.InFlight
			next := entry
			if next.InFlight > 0 {
				next.InFlight--
			}
			return []scorestore.Op{
				{Kind: scorestore.OpRemove, Entry: entry},
				{Kind: scorestore.OpInsert, Entry: next},
			}, nil
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("%w: release entry: %v", ErrBatchFailed, err)
	}

	if prior == -1 {
		if missingIsError {
			return fmt.Errorf("%w: question not in priority queue", ErrNotFound)
		}
		e.logger.Debug("release for task absent from queue",
			log.F("queue", string(q)),
			log.F("task_id", taskID),
		)
		return nil
	}

	if prior == 1 {
		key := mcqLeaseKey(taskID)
		if q == scorestore.QueueText {
			key = txtLeaseKey(taskID, subIndex)
		}
		if err := e.leases.Release(ctx, key); err != nil {
			return fmt.Errorf("%w: delete lease: %v", ErrBatchFailed, err)
		}
	}
	return nil
}

// IsRecoverable reports whether err belongs to the caller-recoverable part
// of the taxonomy (nothing to retry, request simply yielded no work or bad
// input).
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrQueueEmpty) ||
		errors.Is(err, ErrNoEligible) ||
		errors.Is(err, ErrNotFound)
}
