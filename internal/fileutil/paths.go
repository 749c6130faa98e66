package fileutil

import (
	"path/filepath"
	"strconv"
)

// PlanDir returns <storage>/<planId>.
func PlanDir(storageRoot, planID string) string {
	return filepath.Join(storageRoot, planID)
}

// PlanMetaPath returns <storage>/<planId>/plan.json.
func PlanMetaPath(storageRoot, planID string) string {
	return filepath.Join(PlanDir(storageRoot, planID), "plan.json")
}

// SpecsDir returns <storage>/<planId>/specs/<nodeId>.
func SpecsDir(storageRoot, planID, nodeID string) string {
	return filepath.Join(PlanDir(storageRoot, planID), "specs", nodeID)
}

// AttemptDir returns <storage>/<planId>/specs/<nodeId>/attempts/<n>.
func AttemptDir(storageRoot, planID, nodeID string, n int) string {
	return filepath.Join(SpecsDir(storageRoot, planID, nodeID), "attempts", strconv.Itoa(n))
}

// CurrentLink returns <storage>/<planId>/specs/<nodeId>/current.
func CurrentLink(storageRoot, planID, nodeID string) string {
	return filepath.Join(SpecsDir(storageRoot, planID, nodeID), "current")
}

// PlansIndexPath returns <storage>/plans-index.json.
func PlansIndexPath(storageRoot string) string {
	return filepath.Join(storageRoot, "plans-index.json")
}

// FallbackLogPath returns <storage>/logs/<safePlanId>_<safeNodeId>.log.
// The store does not write to this path: execution logs live in each
// attempt's own directory.
func FallbackLogPath(storageRoot, safePlanID, safeNodeID string) string {
	return filepath.Join(storageRoot, "logs", safePlanID+"_"+safeNodeID+".log")
}
