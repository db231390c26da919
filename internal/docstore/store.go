package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	pebblestore "github.com/rzbill/labeld/internal/storage/pebble"
)

// ErrNotFound is returned when no datapoint exists for an ID.
var ErrNotFound = errors.New("docstore: datapoint not found")

const prefixDatapoint = "dp/"

func datapointKey(id string) []byte { return []byte(prefixDatapoint + id) }

// UpdateKind discriminates bulk update operations.
type UpdateKind int

const (
	// UpdateAppendMCQ appends a multiple-choice answer to a question.
	UpdateAppendMCQ UpdateKind = iota
	// UpdateAppendText appends a free-text answer to a question.
	UpdateAppendText
	// UpdateSetFlag sets a question's flagged state.
	UpdateSetFlag
)

// Update is one element of a BulkApply call. Every update is filtered by
// "question exists at SubIndex": a non-matching update modifies nothing and
// does not count, which prevents answers from creating sparse structure.
type Update struct {
	Kind     UpdateKind
	TaskID   string
	SubIndex int
	Answer   Answer // UpdateAppendMCQ / UpdateAppendText
	Flagged  bool   // UpdateSetFlag
	Status   Status // optional; applied to the datapoint when the update matches
}

// Store is the canonical datapoint store. labeld embeds it in the same
// pebble DB as the scheduling view; the scheduling view must always be
// rebuildable from what is stored here.
//
// Mutations take a store-wide mutex: answer appends are read-modify-write
// over whole documents and concurrent submissions for one datapoint must
// not lose answers.
type Store struct {
	db *pebblestore.DB
	mu sync.Mutex
}

// New creates a Store over db.
func New(db *pebblestore.DB) *Store {
	return &Store{db: db}
}

// Put writes a datapoint, overwriting any existing record with the same ID.
func (s *Store) Put(ctx context.Context, d *Datapoint) error {
	if d.ID == "" {
		return errors.New("docstore: datapoint ID is required")
	}
	if d.ProcessingStatus == "" {
		d.ProcessingStatus = StatusLiveLabelMCQ
	}
	val, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("docstore: encode %s: %w", d.ID, err)
	}
	if err := s.db.Set(datapointKey(d.ID), val); err != nil {
		return fmt.Errorf("docstore: write %s: %w", d.ID, err)
	}
	return nil
}

// FindByID loads the full datapoint payload.
func (s *Store) FindByID(ctx context.Context, id string) (*Datapoint, error) {
	val, err := s.db.Get(datapointKey(id))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("docstore: read %s: %w", id, err)
	}
	var d Datapoint
	if err := json.Unmarshal(val, &d); err != nil {
		return nil, fmt.Errorf("docstore: decode %s: %w", id, err)
	}
	return &d, nil
}

// BulkApply executes the updates in order against their datapoints and
// commits every touched document in one batch. It returns the number of
// updates that matched an existing question. Updates referencing a missing
// datapoint or question are skipped, not errors.
func (s *Store) BulkApply(ctx context.Context, ops []Update) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := map[string]*Datapoint{}
	load := func(id string) (*Datapoint, error) {
		if d, ok := docs[id]; ok {
			return d, nil
		}
		d, err := s.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				docs[id] = nil
				return nil, nil
			}
			return nil, err
		}
		docs[id] = d
		return d, nil
	}

	modified := 0
	for i, op := range ops {
		d, err := load(op.TaskID)
		if err != nil {
			return modified, fmt.Errorf("docstore: bulk op %d: %w", i, err)
		}
		if d == nil || !d.HasQuestion(op.SubIndex) {
			continue
		}
		q := &d.PreLabel.Questions[op.SubIndex]
		switch op.Kind {
		case UpdateAppendMCQ:
			q.MCQAnswers = append(q.MCQAnswers, op.Answer)
		case UpdateAppendText:
			q.TextAnswers = append(q.TextAnswers, op.Answer)
		case UpdateSetFlag:
			q.IsFlagged = op.Flagged
		default:
			return modified, fmt.Errorf("docstore: bulk op %d has unknown kind %d", i, op.Kind)
		}
		if op.Status != "" {
			d.ProcessingStatus = op.Status
		}
		modified++
	}

	b := s.db.NewBatch()
	defer b.Close()
	for id, d := range docs {
		if d == nil {
			continue
		}
		val, err := json.Marshal(d)
		if err != nil {
			return modified, fmt.Errorf("docstore: encode %s: %w", id, err)
		}
		if err := b.Set(datapointKey(id), val, nil); err != nil {
			return modified, fmt.Errorf("docstore: stage %s: %w", id, err)
		}
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return modified, fmt.Errorf("docstore: commit bulk: %w", err)
	}
	return modified, nil
}

// SetStatus updates a datapoint's processing status.
func (s *Store) SetStatus(ctx context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	d.ProcessingStatus = status
	val, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("docstore: encode %s: %w", id, err)
	}
	if err := s.db.Set(datapointKey(id), val); err != nil {
		return fmt.Errorf("docstore: write %s: %w", id, err)
	}
	return nil
}

// List returns all datapoints in ID order.
func (s *Store) List(ctx context.Context) ([]Datapoint, error) {
	lo := []byte(prefixDatapoint)
	hi := append([]byte(nil), lo...)
	hi[len(hi)-1]++ // prefix successor: '/' -> '0'
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, fmt.Errorf("docstore: iterate: %w", err)
	}
	defer iter.Close()

	var out []Datapoint
	for ok := iter.First(); ok; ok = iter.Next() {
		var d Datapoint
		if err := json.Unmarshal(iter.Value(), &d); err != nil {
			return nil, fmt.Errorf("docstore: decode %s: %w", iter.Key(), err)
		}
		out = append(out, d)
	}
	return out, nil
}
