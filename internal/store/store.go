// Package store is the Persistent Store (C1): per-plan metadata plus a
// specs/<nodeId>/attempts/<n> subtree, written the way the teacher's
// internal/engine/state.go writes station state — except the teacher
// keeps one flat status file per station, and this store keeps a full
// append-only attempt history per node, as spec §4.1/§6 require.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/re-cinq/dagline/internal/fileutil"
	"github.com/re-cinq/dagline/internal/model"
)

// ErrNotFound is returned by read operations when the requested
// document does not exist on disk. Callers treat this as "absent", not
// as a failure (spec §7: "not-found ... returned as absent; not
// raised").
var ErrNotFound = errors.New("not found")

// Store is the filesystem-backed Persistent Store rooted at Root.
type Store struct {
	Root string
}

// New returns a Store rooted at the given storage directory.
func New(root string) *Store {
	return &Store{Root: root}
}

// WritePlanMetadata atomically writes a plan's full metadata document
// and updates the plans index.
func (s *Store) WritePlanMetadata(p *model.Plan) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling plan %s: %w", p.ID, err)
	}
	path := fileutil.PlanMetaPath(s.Root, p.ID)
	if err := fileutil.AtomicWriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing plan metadata %s: %w", p.ID, err)
	}
	return s.touchIndex(p.ID)
}

// ReadPlanMetadata reads a plan's metadata document. Returns
// ErrNotFound if the plan does not exist.
func (s *Store) ReadPlanMetadata(planID string) (*model.Plan, error) {
	path := fileutil.PlanMetaPath(s.Root, planID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading plan metadata %s: %w", planID, err)
	}
	var p model.Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing plan metadata %s: %w", planID, err)
	}
	return &p, nil
}

// ListPlanIDs lists every plan ID known to the index. Missing or
// corrupt index files are tolerated by returning an empty list, per
// spec §7's "unrecoverable corruption ... causes that plan to be
// skipped at load, not the whole process" extended to the index itself.
func (s *Store) ListPlanIDs() ([]string, error) {
	idx, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(idx.Plans))
	for id := range idx.Plans {
		ids = append(ids, id)
	}
	return ids, nil
}

// DeletePlan removes a plan's entire directory and its index entry.
// Idempotent: a missing directory is not an error.
func (s *Store) DeletePlan(planID string) error {
	dir := fileutil.PlanDir(s.Root, planID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing plan dir %s: %w", planID, err)
	}
	return s.removeFromIndex(planID)
}
