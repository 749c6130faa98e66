package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/re-cinq/dagline/internal/fileutil"
	"github.com/re-cinq/dagline/internal/model"
)

// legacyNodeDoc is the single-document schema used before specs were
// split per-attempt: one spec.json per node holding all three phases
// inline, no attempt history.
type legacyNodeDoc struct {
	Prechecks  *model.PhaseSpec `json:"prechecks,omitempty"`
	Work       *model.PhaseSpec `json:"work,omitempty"`
	Postchecks *model.PhaseSpec `json:"postchecks,omitempty"`
}

// MigrateLegacyNodeSpec reads an old-format specs/<nodeId>/spec.json,
// if present, and writes it out in the split per-attempt form at
// attempts/1, then removes the legacy file. A no-op if no legacy file
// exists.
func (s *Store) MigrateLegacyNodeSpec(planID, nodeID string) error {
	legacyPath := filepath.Join(fileutil.SpecsDir(s.Root, planID, nodeID), "spec.json")
	data, err := os.ReadFile(legacyPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var doc legacyNodeDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	if err := s.SnapshotSpecsForAttempt(planID, nodeID, 1); err != nil {
		return err
	}
	if doc.Prechecks != nil {
		if err := s.WriteNodeSpec(planID, nodeID, model.PhasePrechecks, doc.Prechecks); err != nil {
			return err
		}
	}
	if doc.Work != nil {
		if err := s.WriteNodeSpec(planID, nodeID, model.PhaseWork, doc.Work); err != nil {
			return err
		}
	}
	if doc.Postchecks != nil {
		if err := s.WriteNodeSpec(planID, nodeID, model.PhasePostchecks, doc.Postchecks); err != nil {
			return err
		}
	}

	return os.Remove(legacyPath)
}
