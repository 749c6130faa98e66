package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/re-cinq/dagline/internal/fileutil"
	"github.com/re-cinq/dagline/internal/model"
)

// phaseRecord is the on-disk shape of a PhaseSpec. Agent-task
// instructions longer than nothing are split into a sibling markdown
// file and referenced by InstructionsFile, so a human can open
// work.md directly instead of unescaping a JSON string.
type phaseRecord struct {
	Kind    model.PhaseKind   `json:"kind"`
	Command string            `json:"command,omitempty"`
	Program string            `json:"program,omitempty"`
	Args    []string          `json:"args,omitempty"`

	InstructionsFile string   `json:"instructionsFile,omitempty"`
	AgentCommand     string   `json:"agentCommand,omitempty"`
	AgentArgs        []string `json:"agentArgs,omitempty"`

	Env map[string]string `json:"env,omitempty"`
}

func phaseFileName(phase model.Phase) string { return string(phase) + ".json" }
func phaseMDFileName(phase model.Phase) string { return string(phase) + ".md" }

// WriteNodeSpec writes a phase spec into the node's current attempt
// directory, splitting agent-task instructions into a sibling markdown
// file.
func (s *Store) WriteNodeSpec(planID, nodeID string, phase model.Phase, spec *model.PhaseSpec) error {
	dir, err := s.currentDir(planID, nodeID)
	if err != nil {
		return err
	}

	rec := phaseRecord{
		Kind:         spec.Kind,
		Command:      spec.Command,
		Program:      spec.Program,
		Args:         spec.Args,
		AgentCommand: spec.AgentCommand,
		AgentArgs:    spec.AgentArgs,
		Env:          spec.Env,
	}

	if spec.Kind == model.KindAgentTask && spec.Instructions != "" {
		mdName := phaseMDFileName(phase)
		if err := fileutil.AtomicWriteFile(filepath.Join(dir, mdName), []byte(spec.Instructions), 0644); err != nil {
			return fmt.Errorf("writing instructions for %s: %w", phase, err)
		}
		rec.InstructionsFile = mdName
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling phase spec %s: %w", phase, err)
	}
	return fileutil.AtomicWriteFile(filepath.Join(dir, phaseFileName(phase)), data, 0644)
}

// ReadNodeSpec reads a phase spec from the node's current attempt
// directory, rehydrating agent-task instructions from their sibling
// markdown file. Returns ErrNotFound if the phase was never configured.
func (s *Store) ReadNodeSpec(planID, nodeID string, phase model.Phase) (*model.PhaseSpec, error) {
	dir, err := s.currentDir(planID, nodeID)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, phaseFileName(phase))
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading phase spec %s: %w", phase, err)
	}

	var rec phaseRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing phase spec %s: %w", phase, err)
	}

	spec := &model.PhaseSpec{
		Kind:         rec.Kind,
		Command:      rec.Command,
		Program:      rec.Program,
		Args:         rec.Args,
		AgentCommand: rec.AgentCommand,
		AgentArgs:    rec.AgentArgs,
		Env:          rec.Env,
	}

	if rec.InstructionsFile != "" {
		mdPath := filepath.Join(dir, rec.InstructionsFile)
		mdData, err := os.ReadFile(mdPath)
		if err != nil {
			return nil, fmt.Errorf("reading instructions file %s: %w", rec.InstructionsFile, err)
		}
		spec.Instructions = string(mdData)
	}

	return spec, nil
}

// currentDir resolves the "current" symlink to its target attempt
// directory, following it rather than returning the symlink path
// itself so callers can filepath.Join safely.
func (s *Store) currentDir(planID, nodeID string) (string, error) {
	link := fileutil.CurrentLink(s.Root, planID, nodeID)
	target, err := os.Readlink(link)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		// Not a symlink — e.g. the pre-attempt-1 authoring directory.
		if fi, statErr := os.Stat(link); statErr == nil && fi.IsDir() {
			return link, nil
		}
		return "", fmt.Errorf("resolving current spec dir for node %s: %w", nodeID, err)
	}
	if filepath.IsAbs(target) {
		return target, nil
	}
	return filepath.Join(filepath.Dir(link), target), nil
}

// SnapshotSpecsForAttempt prepares attempts/<n> for a new attempt and
// retargets "current" to it (spec §4.1):
//   - n == 1: promotes any pre-existing current/ authoring directory
//     into attempts/1 (a fresh node has none, so attempts/1 starts empty).
//   - n > 1: copies attempt n-1's spec files (never its execution log —
//     each attempt starts with a fresh log, I7) into attempts/n.
func (s *Store) SnapshotSpecsForAttempt(planID, nodeID string, n int) error {
	specsDir := fileutil.SpecsDir(s.Root, planID, nodeID)
	if err := fileutil.EnsureDir(specsDir); err != nil {
		return err
	}

	attemptDir := fileutil.AttemptDir(s.Root, planID, nodeID, n)
	currentPath := fileutil.CurrentLink(s.Root, planID, nodeID)

	if n == 1 {
		if fi, err := os.Lstat(currentPath); err == nil && fi.Mode()&os.ModeSymlink == 0 && fi.IsDir() {
			if err := fileutil.EnsureDir(filepath.Dir(attemptDir)); err != nil {
				return err
			}
			if err := os.Rename(currentPath, attemptDir); err != nil {
				return fmt.Errorf("promoting pre-existing spec dir for node %s: %w", nodeID, err)
			}
		} else {
			if err := fileutil.EnsureDir(attemptDir); err != nil {
				return err
			}
		}
	} else {
		prevDir := fileutil.AttemptDir(s.Root, planID, nodeID, n-1)
		if err := fileutil.EnsureDir(attemptDir); err != nil {
			return err
		}
		if err := copySpecFiles(prevDir, attemptDir); err != nil {
			return fmt.Errorf("copying spec files from attempt %d to %d: %w", n-1, n, err)
		}
	}

	os.Remove(currentPath)
	rel, err := filepath.Rel(filepath.Dir(currentPath), attemptDir)
	if err != nil {
		rel = attemptDir
	}
	if err := os.Symlink(rel, currentPath); err != nil {
		return fmt.Errorf("retargeting current for node %s attempt %d: %w", nodeID, n, err)
	}
	return nil
}

// copySpecFiles copies every file in src to dst except execution.log.
func copySpecFiles(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || e.Name() == "execution.log" {
			continue
		}
		if err := copyFile(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// ExecutionLogPath returns the path to the current attempt's execution
// log for a node.
func (s *Store) ExecutionLogPath(planID, nodeID string) (string, error) {
	dir, err := s.currentDir(planID, nodeID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "execution.log"), nil
}

// MoveFileToSpec copies an externally-produced file into the node's
// current attempt directory under destName, rejecting any destName
// that would escape the attempt directory (directory traversal guard,
// spec §4.1/§6).
func (s *Store) MoveFileToSpec(planID, nodeID, srcPath, destName string) error {
	dir, err := s.currentDir(planID, nodeID)
	if err != nil {
		return err
	}
	dest, err := fileutil.SafeJoin(dir, destName)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("reading source file %s: %w", srcPath, err)
	}
	if err := fileutil.AtomicWriteFile(dest, data, 0644); err != nil {
		return err
	}
	return os.Remove(srcPath)
}
