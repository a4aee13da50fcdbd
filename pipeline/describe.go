// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pipeline

// PlanDescription is a serializable rendering of a compiled expression,
// suitable for JSON output.
type PlanDescription struct {
	Cmdline    string             `json:"cmdline"`
	Background bool               `json:"background"`
	Chains     []ChainDescription `json:"chains"`
}

// ChainDescription describes one linear pipeline of the plan.
type ChainDescription struct {
	Gate   string             `json:"gate"`
	Stdin  string             `json:"stdin,omitempty"`
	Stdout string             `json:"stdout,omitempty"`
	Stages []StageDescription `json:"stages"`
}

// StageDescription describes one process of a chain.
type StageDescription struct {
	Machine      string            `json:"machine"`
	Path         string            `json:"path"`
	Args         []string          `json:"args,omitempty"`
	Dir          string            `json:"dir,omitempty"`
	Env          map[string]string `json:"env,omitempty"`
	SuccessCodes string            `json:"successCodes"`
	Stderr       string            `json:"stderr,omitempty"`
}

// Describe compiles e and returns its execution plan without spawning
// anything.
func Describe(e Expr) (PlanDescription, error) {
	p, err := compile(e)
	if err != nil {
		return PlanDescription{}, err
	}

	desc := PlanDescription{
		Cmdline:    p.String(),
		Background: p.background,
		Chains:     make([]ChainDescription, 0, len(p.chains)),
	}

	for _, c := range p.chains {
		cd := ChainDescription{
			Gate:   c.gate.String(),
			Stdin:  describeInput(c.stdin),
			Stdout: describeOutput(c.stdout, "capture"),
			Stages: make([]StageDescription, 0, len(c.stages)),
		}

		for _, st := range c.stages {
			cd.Stages = append(cd.Stages, StageDescription{
				Machine:      st.cmd.mach.String(),
				Path:         st.cmd.path,
				Args:         st.cmd.Args(),
				Dir:          st.cmd.dir,
				Env:          st.cmd.env,
				SuccessCodes: st.cmd.valid.String(),
				Stderr:       describeOutput(st.errOut, ""),
			})
		}

		desc.Chains = append(desc.Chains, cd)
	}

	return desc, nil
}

func describeInput(in Input) string {
	switch {
	case in.file != "":
		return "file:" + in.file
	case in.reader != nil:
		return "reader"
	case in.inherit:
		return "inherit"
	default:
		return ""
	}
}

func describeOutput(out Output, def string) string {
	switch {
	case out.file != "" && out.appendTo:
		return "append:" + out.file
	case out.file != "":
		return "file:" + out.file
	case out.writer != nil:
		return "writer"
	case out.inherit:
		return "inherit"
	default:
		return def
	}
}
