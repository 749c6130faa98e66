package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/re-cinq/dagline/internal/capacity"
	"github.com/re-cinq/dagline/internal/config"
	"github.com/re-cinq/dagline/internal/events"
	"github.com/re-cinq/dagline/internal/executor"
	"github.com/re-cinq/dagline/internal/gitgw"
	"github.com/re-cinq/dagline/internal/lifecycle"
	"github.com/re-cinq/dagline/internal/resolver"
	"github.com/re-cinq/dagline/internal/riserial"
	"github.com/re-cinq/dagline/internal/runner"
	"github.com/re-cinq/dagline/internal/store"
)

// loadAndValidateConfig loads a config file and validates it, printing errors to stderr.
func loadAndValidateConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return nil, err
	}

	errs := config.Validate(cfg)
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "Error: %s\n", e)
		}
		return nil, fmt.Errorf("%d validation error(s)", len(errs))
	}

	return cfg, nil
}

// resolveRepo finds the git repository root from a config file path,
// falling back to the config's own defaultRepoPath when the config
// isn't itself inside a repo (e.g. a central dagline install driving
// several checkouts).
func resolveRepo(cfg *config.Config, configArg string) (string, error) {
	configPath, err := filepath.Abs(configArg)
	if err != nil {
		return "", err
	}
	repoDir := findGitRoot(filepath.Dir(configPath))
	if repoDir == "" {
		repoDir = cfg.Settings.DefaultRepoPath
	}
	if repoDir == "" {
		return "", fmt.Errorf("could not find git repository root (set settings.defaultRepoPath in %s)", configArg)
	}
	return repoDir, nil
}

// findGitRoot walks up from dir looking for a .git directory.
func findGitRoot(dir string) string {
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// newLogger builds the ambient zerolog console writer every command
// shares, matching the teacher's plain stderr logging but structured.
func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
}

// app bundles every collaborator a command needs once a config is
// loaded and a repo root resolved — the wiring spec §9 assigns to the
// orchestrator core's composition root.
type app struct {
	cfg    *config.Config
	repo   *gitgw.Repo
	store  *store.Store
	cap    *capacity.Coordinator
	lc     *lifecycle.Lifecycle
	events *events.Broker
	log    zerolog.Logger
}

func newApp(configArg string) (*app, error) {
	cfg, err := loadAndValidateConfig(configArg)
	if err != nil {
		return nil, err
	}
	repoDir, err := resolveRepo(cfg, configArg)
	if err != nil {
		return nil, err
	}

	repo := gitgw.NewRepo(repoDir)
	repo.EnsureIdentity()

	storagePath := cfg.Settings.StoragePath
	if !filepath.IsAbs(storagePath) {
		storagePath = filepath.Join(repoDir, storagePath)
	}
	st := store.New(storagePath)
	log := newLogger()

	broker := events.NewBroker()
	broker.Start()

	lc := lifecycle.New(st, log)
	lc.SetEmitter(broker.EmitFunc())

	a := &app{
		cfg:    cfg,
		repo:   repo,
		store:  st,
		cap:    capacity.New(cfg.Settings.GlobalMaxParallel, nil, ""),
		lc:     lc,
		events: broker,
		log:    log,
	}
	a.logEvents()
	return a, nil
}

// logEvents subscribes a background listener that logs every observable
// event (spec §6) at debug level, demonstrating the broker is live even
// when no other consumer has subscribed yet.
func (a *app) logEvents() {
	sub := a.events.Subscribe()
	go func() {
		for ev := range sub {
			a.log.Debug().
				Str("event", string(ev.Type)).
				Str("plan", ev.PlanID).
				Str("node", ev.NodeID).
				Str("from", ev.From).
				Str("to", ev.To).
				Msg("observable event")
		}
	}()
}

// newExecutor builds a Node Executor bound to this app's repo and
// store, wiring the default shell/pty runner and prefer-hint resolver
// (spec §9's configurable collaborators).
func (a *app) newExecutor(ri *riserial.Serializer) *executor.Executor {
	prefer := resolver.PreferSide(a.cfg.Merge.Prefer)
	return executor.New(
		a.store,
		a.repo,
		&runner.DefaultExecutor{
			AgentCommand: a.cfg.Agent.Command,
			AgentArgs:    a.cfg.Agent.Args,
		},
		resolver.PreferHintResolver{},
		ri,
		executor.Config{
			WorktreeRoot:          filepath.Join(a.store.Root, "worktrees"),
			CleanUpSuccessfulWork: a.cfg.Settings.CleanUpSuccessfulWork,
			MergePrefer:           prefer,
			PushOnSuccess:         a.cfg.Merge.PushOnSuccess,
		},
		a.log,
	)
}
