package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rzbill/labeld/internal/docstore"
	"github.com/rzbill/labeld/internal/lease"
	"github.com/rzbill/labeld/internal/scorestore"
	"github.com/rzbill/labeld/pkg/log"
)

// DocumentStore is the slice of the canonical store the engine needs.
type DocumentStore interface {
	FindByID(ctx context.Context, id string) (*docstore.Datapoint, error)
	BulkApply(ctx context.Context, ops []docstore.Update) (int, error)
	SetStatus(ctx context.Context, id string, status docstore.Status) error
}

// Notifier receives datapoint IDs whose answers are complete. Delivery is
// decoupled from the submitting request; Enqueue must never block on the
// downstream.
type Notifier interface {
	Enqueue(taskID string)
}

// Options tunes the engine. Zero values take the production defaults.
type Options struct {
	MaxHolders  int        // concurrent workers per entry, default 3
	Quorum      int        // answers required per question, default 3
	Affirmative string     // MCQ choice counted toward consensus, default "Yes"
	Scores      ScoreFuncs // defaults to DefaultScores
}

// Engine implements assignment, release, and promotion over the two
// priority queues.
type Engine struct {
	queues *scorestore.Store
	leases *lease.Registry
	docs   DocumentStore
	notify Notifier
	logger log.Logger

	maxHolders  int
	quorum      int
	affirmative string
	scores      ScoreFuncs
}

// NewEngine wires an Engine.
func NewEngine(queues *scorestore.Store, leases *lease.Registry, docs DocumentStore, notify Notifier, opts Options, logger log.Logger) *Engine {
	if opts.MaxHolders <= 0 {
		opts.MaxHolders = 3
	}
	if opts.Quorum <= 0 {
		opts.Quorum = 3
	}
	if opts.Affirmative == "" {
		opts.Affirmative = "Yes"
	}
	if opts.Scores.MCQ == nil || opts.Scores.Txt == nil {
		opts.Scores = DefaultScores()
	}
	if logger == nil {
		logger = log.NewLogger(log.WithLevel(log.InfoLevel))
	}
	return &Engine{
		queues:      queues,
		leases:      leases,
		docs:        docs,
		notify:      notify,
		logger:      logger.WithComponent("dispatch"),
		maxHolders:  opts.MaxHolders,
		quorum:      opts.Quorum,
		affirmative: opts.Affirmative,
		scores:      opts.Scores,
	}
}

// MaxHolders returns the per-entry concurrency cap.
func (e *Engine) MaxHolders() int { return e.maxHolders }

// Scores returns the configured score functions.
func (e *Engine) Scores() ScoreFuncs { return e.scores }

// QueueStats summarizes one queue using the engine's holder cap.
func (e *Engine) QueueStats(ctx context.Context, q scorestore.Queue) (scorestore.Stats, error) {
	return e.queues.QueueStats(ctx, q, e.maxHolders)
}

// Lease keys: "mcq/{taskID}" for whole-datapoint assignments and
// "txt/{taskID}#{subIndex}" for per-question assignments.
func mcqLeaseKey(taskID string) string { return "mcq/" + taskID }

func txtLeaseKey(taskID string, subIndex int) string {
	return "txt/" + taskID + "#" + strconv.Itoa(subIndex)
}

// parseLeaseKey inverts the two key shapes. subIndex is -1 for MCQ keys.
func parseLeaseKey(key string) (q scorestore.Queue, taskID string, subIndex int, ok bool) {
	kind, rest, found := strings.Cut(key, "/")
	if !found || rest == "" {
		return "", "", 0, false
	}
	switch kind {
	case "mcq":
		return scorestore.QueueMCQ, rest, -1, true
	case "txt":
		i := strings.LastIndexByte(rest, '#')
		if i <= 0 {
			return "", "", 0, false
		}
		idx, err := strconv.Atoi(rest[i+1:])
		if err != nil {
			return "", "", 0, false
		}
		return scorestore.QueueText, rest[:i], idx, true
	default:
		return "", "", 0, false
	}
}

// DrawMCQ assigns up to count datapoints from the MCQ queue, highest score
// first. Each drawn entry's in-flight counter is incremented and its lease
// created or refreshed. Returns ErrQueueEmpty when the queue has zero
// members and ErrNoEligible when every member is at the holder cap.
func (e *Engine) DrawMCQ(ctx context.Context, count int) ([]docstore.Datapoint, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive", ErrInvalidRequest)
	}

	var drawn []scorestore.Entry
	err := e.queues.Update(ctx, scorestore.QueueMCQ, scorestore.ScoreDesc, func(entries []scorestore.Entry) ([]scorestore.Op, error) {
		if len(entries) == 0 {
			return nil, ErrQueueEmpty
		}
		var ops []scorestore.Op
		for _, entry := range entries {
			if len(drawn) >= count {
				break
			}
			if entry.InFlight >= e.maxHolders {
				continue
			}
			next := entry
			next.InFlight++
			ops = append(ops,
				scorestore.Op{Kind: scorestore.OpRemove, Entry: entry},
				scorestore.Op{Kind: scorestore.OpInsert, Entry: next},
			)
			drawn = append(drawn, next)
		}
		if len(drawn) == 0 {
			return nil, ErrNoEligible
		}
		return ops, nil
	})
	if err != nil {
		if errors.Is(err, ErrQueueEmpty) || errors.Is(err, ErrNoEligible) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrBatchFailed, err)
	}

	out := make([]docstore.Datapoint, 0, len(drawn))
	for _, entry := range drawn {
		if err := e.leases.Acquire(ctx, mcqLeaseKey(entry.TaskID)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBatchFailed, err)
		}
		d, err := e.docs.FindByID(ctx, entry.TaskID)
		if err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				// Scheduling view ahead of the canonical store; the next
				// re-seed drops the orphan.
				e.logger.Warn("drawn entry has no datapoint", log.F("task_id", entry.TaskID))
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrBatchFailed, err)
		}
		out = append(out, *d)
	}
	return out, nil
}

// TextQuestion is one free-text assignment returned by DrawText.
type TextQuestion struct {
	TaskID        string   `json:"datapoint_id"`
	QuestionIndex int      `json:"question_index"`
	Question      string   `json:"question"`
	Keywords      []string `json:"keywords,omitempty"`
	MapPlacement  string   `json:"map_placement,omitempty"`
	MediaURL      string   `json:"media_url,omitempty"`
}

// DrawText assigns up to count flagged questions from the text queue,
// lowest score first (least-answered questions are the most urgent). An
// empty result is not an error: the queue being empty and every entry
// being at the holder cap both yield zero items.
func (e *Engine) DrawText(ctx context.Context, count int) ([]TextQuestion, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive", ErrInvalidRequest)
	}

	var drawn []scorestore.Entry
	err := e.queues.Update(ctx, scorestore.QueueText, scorestore.ScoreAsc, func(entries []scorestore.Entry) ([]scorestore.Op, error) {
		var ops []scorestore.Op
		for _, entry := range entries {
			if len(drawn) >= count {
				break
			}
			if entry.InFlight >= e.maxHolders {
				continue
			}
			next := entry
			next.InFlight++
			ops = append(ops,
				scorestore.Op{Kind: scorestore.OpRemove, Entry: entry},
				scorestore.Op{Kind: scorestore.OpInsert, Entry: next},
			)
			drawn = append(drawn, next)
		}
		return ops, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBatchFailed, err)
	}

	out := make([]TextQuestion, 0, len(drawn))
	for _, entry := range drawn {
		if err := e.leases.Acquire(ctx, txtLeaseKey(entry.TaskID, entry.SubIndex)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBatchFailed, err)
		}
		d, err := e.docs.FindByID(ctx, entry.TaskID)
		if err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				e.logger.Warn("drawn entry has no datapoint", log.F("task_id", entry.TaskID))
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrBatchFailed, err)
		}
		if !d.HasQuestion(entry.SubIndex) {
			e.logger.Warn("drawn entry references missing question",
				log.F("task_id", entry.TaskID),
				log.F("question_index", entry.SubIndex),
			)
			continue
		}
		out = append(out, TextQuestion{
			TaskID:        entry.TaskID,
			QuestionIndex: entry.SubIndex,
			Question:      d.PreLabel.Questions[entry.SubIndex].Text,
			Keywords:      d.PreLabel.Keywords,
			MapPlacement:  d.PreLabel.MapPlacement,
			MediaURL:      d.MediaURL,
		})
	}
	return out, nil
}
