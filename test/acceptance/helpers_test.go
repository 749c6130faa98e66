package acceptance_test

import (
	"os"
	"os/exec"
	"strings"

	. "github.com/onsi/gomega"
)

func runGit(dir string, args ...string) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	Expect(err).NotTo(HaveOccurred(), "git %v: %s", args, string(out))
}

func runGitOutput(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	Expect(err).NotTo(HaveOccurred())
	return strings.TrimSpace(string(out))
}

func writeFile(path, content string) {
	Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
}

// newTestRepo creates a fresh git repo with an initial commit on main
// and returns its path plus a cleanup func.
func newTestRepo(tmpDir string) string {
	repoDir := tmpDir + "/repo"
	Expect(os.MkdirAll(repoDir, 0755)).To(Succeed())
	runGit(repoDir, "init")
	runGit(repoDir, "checkout", "-b", "main")
	runGit(repoDir, "config", "user.email", "test@dagline.dev")
	runGit(repoDir, "config", "user.name", "dagline test")
	writeFile(repoDir+"/README.md", "seed\n")
	runGit(repoDir, "add", "README.md")
	runGit(repoDir, "commit", "-m", "initial commit")
	return repoDir
}
