package config

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/re-cinq/dagline/internal/model"
)

// ToPlanSpec converts a loaded+validated Config into a model.PlanSpec,
// assigning a fresh internal node ID to each job (spec §3: "per-node
// mapping from producer ID (user-given) to internal node ID").
func (cfg *Config) ToPlanSpec() (model.PlanSpec, map[string]string, error) {
	nameToID := make(map[string]string, len(cfg.Jobs))
	for _, j := range cfg.Jobs {
		nameToID[j.Name] = uuid.NewString()
	}

	nodes := make([]model.NodeSpec, 0, len(cfg.Jobs))
	for _, j := range cfg.Jobs {
		ns := model.NodeSpec{
			ID:               nameToID[j.Name],
			Name:             j.Name,
			ExpectsNoChanges: j.ExpectsNoChanges,
		}
		if j.AutoHeal == nil {
			ns.AutoHeal = true
		} else {
			ns.AutoHeal = *j.AutoHeal
		}

		if j.Coordination {
			ns.Kind = model.NodeCoordination
		} else {
			ns.Kind = model.NodeJob
		}

		for _, dep := range j.Needs {
			depID, ok := nameToID[dep]
			if !ok {
				return model.PlanSpec{}, nil, fmt.Errorf("job %q depends on unknown job %q", j.Name, dep)
			}
			ns.DependsOn = append(ns.DependsOn, depID)
		}

		var err error
		ns.Prechecks, err = toPhaseSpec(cfg, j.Prechecks)
		if err != nil {
			return model.PlanSpec{}, nil, fmt.Errorf("job %q prechecks: %w", j.Name, err)
		}
		ns.Work, err = toPhaseSpec(cfg, j.Work)
		if err != nil {
			return model.PlanSpec{}, nil, fmt.Errorf("job %q work: %w", j.Name, err)
		}
		ns.Postchecks, err = toPhaseSpec(cfg, j.Postchecks)
		if err != nil {
			return model.PlanSpec{}, nil, fmt.Errorf("job %q postchecks: %w", j.Name, err)
		}

		nodes = append(nodes, ns)
	}

	spec := model.PlanSpec{
		Nodes:        nodes,
		BaseBranch:   cfg.Settings.BaseBranch,
		TargetBranch: cfg.Settings.TargetBranch,
		MaxParallel:  cfg.Settings.MaxParallel,
	}
	return spec, nameToID, nil
}

func toPhaseSpec(cfg *Config, p *PhaseConfig) (*model.PhaseSpec, error) {
	if p == nil {
		return nil, nil
	}
	switch p.Kind() {
	case "agent-task":
		cmd := p.AgentCommand
		args := p.AgentArgs
		if cmd == "" {
			cmd = cfg.Agent.Command
			args = cfg.Agent.Args
		}
		return &model.PhaseSpec{
			Kind:         model.KindAgentTask,
			Instructions: p.AgentInstructions,
			AgentCommand: cmd,
			AgentArgs:    args,
			Env:          p.Env,
		}, nil
	case "subprocess":
		return &model.PhaseSpec{
			Kind:    model.KindSubprocess,
			Program: p.Program,
			Args:    p.Args,
			Env:     p.Env,
		}, nil
	default:
		if p.Command == "" {
			return nil, fmt.Errorf("phase has no command, program, or agentInstructions")
		}
		return &model.PhaseSpec{
			Kind:    model.KindShellCommand,
			Command: p.Command,
			Env:     p.Env,
		}, nil
	}
}
