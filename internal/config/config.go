// Package config loads and validates a plan-spec YAML document the way
// the teacher's internal/config/config.go loads a line.yaml: a plain
// struct tree unmarshaled with gopkg.in/yaml.v3 plus a hand-rolled
// Validate that returns every error found rather than stopping at the
// first one.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk plan-spec document (plan.yaml). It generalizes
// the teacher's linear "concerns:" chain into an arbitrary DAG of jobs
// plus the orchestrator-core settings enumerated in spec §9.
type Config struct {
	Agent    AgentConfig `yaml:"agent"`
	Settings Settings    `yaml:"settings"`
	Jobs     []Job       `yaml:"jobs"`
	Merge    MergeConfig `yaml:"merge,omitempty"`
}

// AgentConfig is the default command line used for agent-task phases
// that don't override it per-job.
type AgentConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Settings holds the orchestrator-core configuration keys spec §9
// enumerates as belonging to the core (as opposed to its external
// collaborators).
type Settings struct {
	StoragePath           string   `yaml:"storagePath"`
	DefaultRepoPath       string   `yaml:"defaultRepoPath"`
	MaxParallel           int      `yaml:"maxParallel"`
	GlobalMaxParallel     int      `yaml:"globalMaxParallel"`
	PumpInterval          Duration `yaml:"pumpInterval"`
	CleanUpSuccessfulWork bool     `yaml:"cleanUpSuccessfulWork"`
	BaseBranch            string   `yaml:"baseBranch"`
	TargetBranch          string   `yaml:"targetBranch,omitempty"`
}

// MergeConfig holds the merge.* settings spec §9 names.
type MergeConfig struct {
	PushOnSuccess bool   `yaml:"pushOnSuccess"`
	Prefer        string `yaml:"prefer,omitempty"` // "ours" | "theirs" | ""
}

// Duration wraps time.Duration for YAML unmarshaling from strings like
// "10s", kept verbatim from the teacher's config.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Job is the YAML shape of a DAG node: a name, the upstream job names
// it depends on, and up to three phase specs.
type Job struct {
	Name  string   `yaml:"name"`
	Needs []string `yaml:"needs,omitempty"`

	Coordination bool `yaml:"coordination,omitempty"`

	Prechecks  *PhaseConfig `yaml:"prechecks,omitempty"`
	Work       *PhaseConfig `yaml:"work,omitempty"`
	Postchecks *PhaseConfig `yaml:"postchecks,omitempty"`

	AutoHeal         *bool `yaml:"autoHeal,omitempty"` // nil means default true
	ExpectsNoChanges bool  `yaml:"expectsNoChanges,omitempty"`
}

// PhaseConfig is the YAML shape of one phase. Exactly one of Command,
// Program, or Agent should be set; Load rejects ambiguous entries.
type PhaseConfig struct {
	Command string   `yaml:"command,omitempty"`
	Program string   `yaml:"program,omitempty"`
	Args    []string `yaml:"args,omitempty"`

	AgentInstructions string   `yaml:"agentInstructions,omitempty"`
	AgentCommand      string   `yaml:"agentCommand,omitempty"`
	AgentArgs         []string `yaml:"agentArgs,omitempty"`

	Env map[string]string `yaml:"env,omitempty"`
}

// Kind reports which PhaseSpec variant this config entry resolves to.
func (p *PhaseConfig) Kind() string {
	switch {
	case p.AgentInstructions != "":
		return "agent-task"
	case p.Program != "":
		return "subprocess"
	default:
		return "shell-command"
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	if cfg.Settings.StoragePath == "" {
		cfg.Settings.StoragePath = ".dagline/state"
	}
	if cfg.Settings.MaxParallel == 0 {
		cfg.Settings.MaxParallel = 4
	}
	if cfg.Settings.GlobalMaxParallel == 0 {
		cfg.Settings.GlobalMaxParallel = cfg.Settings.MaxParallel
	}
	if cfg.Settings.PumpInterval == 0 {
		cfg.Settings.PumpInterval = Duration(1 * time.Second)
	}
	if cfg.Settings.BaseBranch == "" {
		cfg.Settings.BaseBranch = "main"
	}

	for _, j := range cfg.Jobs {
		for _, p := range []*PhaseConfig{j.Prechecks, j.Work, j.Postchecks} {
			if p == nil {
				continue
			}
			set := 0
			for _, v := range []string{p.Command, p.Program, p.AgentInstructions} {
				if v != "" {
					set++
				}
			}
			if set > 1 {
				return nil, fmt.Errorf("job %q: a phase sets more than one of command, program, agentInstructions", j.Name)
			}
		}
	}

	return &cfg, nil
}

// Validate checks structural integrity of the config: required fields,
// duplicate job names, and dependency cycles. It returns every problem
// found rather than stopping at the first, matching the teacher's
// config.Validate.
func Validate(cfg *Config) []error {
	var errs []error

	if cfg.Agent.Command == "" {
		missing := false
		for _, j := range cfg.Jobs {
			for _, p := range []*PhaseConfig{j.Prechecks, j.Work, j.Postchecks} {
				if p != nil && p.Kind() == "agent-task" && p.AgentCommand == "" {
					missing = true
				}
			}
		}
		if missing {
			errs = append(errs, fmt.Errorf("agent.command is required unless every agent-task phase sets its own agentCommand"))
		}
	}

	if len(cfg.Jobs) == 0 {
		errs = append(errs, fmt.Errorf("at least one job is required"))
	}

	names := make(map[string]bool)
	for i, j := range cfg.Jobs {
		if j.Name == "" {
			errs = append(errs, fmt.Errorf("jobs[%d]: name is required", i))
		} else if names[j.Name] {
			errs = append(errs, fmt.Errorf("jobs[%d]: duplicate name %q", i, j.Name))
		} else {
			names[j.Name] = true
		}

		if !j.Coordination && j.Work == nil && j.Prechecks == nil && j.Postchecks == nil {
			errs = append(errs, fmt.Errorf("jobs[%d] (%s): a non-coordination job needs at least one phase", i, j.Name))
		}
	}

	for i, j := range cfg.Jobs {
		for _, dep := range j.Needs {
			if !names[dep] {
				errs = append(errs, fmt.Errorf("jobs[%d] (%s): unknown dependency %q", i, j.Name, dep))
			}
		}
	}

	if cycleErr := detectCycles(cfg.Jobs); cycleErr != nil {
		errs = append(errs, cycleErr)
	}

	return errs
}

func detectCycles(jobs []Job) error {
	adj := make(map[string][]string)
	for _, j := range jobs {
		adj[j.Name] = j.Needs
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)

	var visit func(node string) error
	visit = func(node string) error {
		color[node] = gray
		for _, dep := range adj[node] {
			if color[dep] == gray {
				return fmt.Errorf("cycle detected: %s -> %s", node, dep)
			}
			if color[dep] == white {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[node] = black
		return nil
	}

	for _, j := range jobs {
		if color[j.Name] == white {
			if err := visit(j.Name); err != nil {
				return err
			}
		}
	}

	return nil
}
