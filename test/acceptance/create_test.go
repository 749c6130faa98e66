package acceptance_test

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("dagline create", func() {
	var tmpDir, repoDir, configPath string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "dagline-test-*")
		Expect(err).NotTo(HaveOccurred())
		repoDir = newTestRepo(tmpDir)

		configPath = filepath.Join(repoDir, "plan.yaml")
		writeFile(configPath, `
agent:
  command: "sh"

settings:
  storagePath: .dagline/state
  baseBranch: main

jobs:
  - name: build
    work:
      command: "echo building > build.txt"
  - name: test
    needs: [build]
    work:
      command: "echo tested > test.txt"
`)
	})

	AfterEach(func() {
		cleanupTestRepo(repoDir, tmpDir)
	})

	It("registers a paused plan with both nodes pending", func() {
		createCmd := exec.Command(binaryPath, "create", "--path", configPath)
		createCmd.Dir = repoDir
		out, err := createCmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred(), "output: %s", string(out))
		Expect(string(out)).To(ContainSubstring("created plan"))

		planID := firstPlanID(repoDir)
		statusCmd := exec.Command(binaryPath, "status", "--path", configPath, planID)
		statusCmd.Dir = repoDir
		statusOut, err := statusCmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred(), "output: %s", string(statusOut))
		Expect(string(statusOut)).To(ContainSubstring("paused"))
		Expect(string(statusOut)).To(ContainSubstring("build"))
		Expect(string(statusOut)).To(ContainSubstring("test"))
	})
})

// firstPlanID reads the plans index written under .dagline/state and
// returns the single plan ID it expects to find there.
func firstPlanID(repoDir string) string {
	data, err := os.ReadFile(filepath.Join(repoDir, ".dagline", "state", "plans-index.json"))
	Expect(err).NotTo(HaveOccurred())
	var idx struct {
		Plans map[string]json.RawMessage `json:"plans"`
	}
	Expect(json.Unmarshal(data, &idx)).To(Succeed())
	for id := range idx.Plans {
		return id
	}
	Fail("no plans found in index: " + strings.TrimSpace(string(data)))
	return ""
}
