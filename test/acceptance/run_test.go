package acceptance_test

import (
	"os"
	"os/exec"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("dagline run --once", func() {
	var tmpDir, repoDir, configPath string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "dagline-run-*")
		Expect(err).NotTo(HaveOccurred())
		repoDir = newTestRepo(tmpDir)

		configPath = filepath.Join(repoDir, "plan.yaml")
		writeFile(configPath, `
agent:
  command: "sh"

settings:
  storagePath: .dagline/state
  baseBranch: main
  targetBranch: main
  pumpInterval: 10ms

jobs:
  - name: build
    work:
      command: "echo building > build.txt && git add build.txt && git commit -m build"
  - name: test
    needs: [build]
    work:
      command: "echo tested > test.txt && git add test.txt && git commit -m test"
`)
	})

	AfterEach(func() {
		cleanupTestRepo(repoDir, tmpDir)
	})

	It("drives a two-node chain to success and merges the result to main", func() {
		dagline(repoDir, configPath, "create")

		planID := firstPlanID(repoDir)
		dagline(repoDir, configPath, "resume", planID)

		out := dagline(repoDir, configPath, "run", "--once")
		GinkgoWriter.Write(out)

		statusOut := dagline(repoDir, configPath, "status", planID)
		Expect(string(statusOut)).To(ContainSubstring("succeeded"))

		log := runGitOutput(repoDir, "log", "main", "--oneline")
		Expect(log).To(ContainSubstring("build"))
		Expect(log).To(ContainSubstring("test"))
	})
})

// dagline runs the test binary against configPath with cmd.Dir set to
// repoDir, failing the spec immediately on a non-zero exit.
func dagline(repoDir, configPath string, args ...string) []byte {
	full := append([]string{"--path", configPath}, args...)
	cmd := exec.Command(binaryPath, full...)
	cmd.Dir = repoDir
	out, err := cmd.CombinedOutput()
	Expect(err).NotTo(HaveOccurred(), "dagline %v: %s", args, string(out))
	return out
}
