package store

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/re-cinq/dagline/internal/fileutil"
)

// indexEntry is deliberately minimal — listPlanIds only needs the ID;
// everything else lives in the plan's own metadata document.
type indexEntry struct {
	PlanID string `json:"planId"`
}

type planIndex struct {
	Plans map[string]indexEntry `json:"plans"`
}

func (s *Store) readIndex() (*planIndex, error) {
	path := fileutil.PlansIndexPath(s.Root)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &planIndex{Plans: make(map[string]indexEntry)}, nil
	}
	if err != nil {
		return &planIndex{Plans: make(map[string]indexEntry)}, nil
	}
	var idx planIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		// Corrupt index: tolerate, start fresh rather than failing load.
		return &planIndex{Plans: make(map[string]indexEntry)}, nil
	}
	if idx.Plans == nil {
		idx.Plans = make(map[string]indexEntry)
	}
	return &idx, nil
}

func (s *Store) writeIndex(idx *planIndex) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling plans index: %w", err)
	}
	return fileutil.AtomicWriteFile(fileutil.PlansIndexPath(s.Root), data, 0644)
}

func (s *Store) touchIndex(planID string) error {
	idx, err := s.readIndex()
	if err != nil {
		return err
	}
	idx.Plans[planID] = indexEntry{PlanID: planID}
	return s.writeIndex(idx)
}

func (s *Store) removeFromIndex(planID string) error {
	idx, err := s.readIndex()
	if err != nil {
		return err
	}
	delete(idx.Plans, planID)
	return s.writeIndex(idx)
}
