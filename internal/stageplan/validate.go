// SPDX-License-Identifier: MPL-2.0

package stageplan

import (
	"fmt"
	"strings"
)

// Validate checks the whole plan: stage names are well formed and unique,
// every stage has a base image, instructions are structurally sound, and
// every CopyFromStage resolves to a strictly earlier stage. Backward-only
// resolution makes the copy graph acyclic by construction.
func (p *Plan) Validate() error {
	if len(p.Stages) == 0 {
		return ErrEmptyPlan
	}
	defined := make(map[StageName]int, len(p.Stages))
	for i, stage := range p.Stages {
		if err := stage.Name.Validate(); err != nil {
			return err
		}
		if _, ok := defined[stage.Name]; ok {
			return &DuplicateStageError{Name: stage.Name}
		}
		if strings.TrimSpace(stage.From) == "" {
			return &InvalidInstructionError{Stage: stage.Name, Index: -1, Reason: "base image must not be empty"}
		}
		for j, inst := range stage.Instructions {
			if err := validateInstruction(stage.Name, j, inst, defined); err != nil {
				return err
			}
		}
		defined[stage.Name] = i
	}
	return nil
}

// validateInstruction checks one instruction. The defined map holds the
// stages declared before the current one, so forward and unknown references
// fail the same lookup.
func validateInstruction(stage StageName, index int, inst Instruction, defined map[StageName]int) error {
	fail := func(reason string) error {
		return &InvalidInstructionError{Stage: stage, Index: index, Reason: reason}
	}
	switch v := inst.(type) {
	case Run:
		if len(v.Commands) == 0 {
			return fail("run step has no commands")
		}
		for _, cmd := range v.Commands {
			if strings.TrimSpace(cmd) == "" {
				return fail("run step contains an empty command")
			}
		}
	case CopyFromStage:
		if v.Stage == stage {
			return &SelfReferenceError{Stage: stage}
		}
		if _, ok := defined[v.Stage]; !ok {
			return &UndefinedStageError{Stage: stage, Ref: v.Stage}
		}
		if err := validatePath(v.Src); err != nil {
			return fail(fmt.Sprintf("copy source: %v", err))
		}
		if err := validatePath(v.Dst); err != nil {
			return fail(fmt.Sprintf("copy destination: %v", err))
		}
	case Copy:
		if err := validatePath(v.Src); err != nil {
			return fail(fmt.Sprintf("copy source: %v", err))
		}
		if err := validatePath(v.Dst); err != nil {
			return fail(fmt.Sprintf("copy destination: %v", err))
		}
	case Env:
		if err := validateKey(v.Key); err != nil {
			return fail(fmt.Sprintf("env key: %v", err))
		}
	case Workdir:
		if err := validatePath(v.Dir); err != nil {
			return fail(fmt.Sprintf("workdir: %v", err))
		}
	case Label:
		if strings.TrimSpace(v.Key) == "" {
			return fail("label key must not be empty")
		}
	case Expose:
		if err := v.Port.Validate(); err != nil {
			return fail(fmt.Sprintf("expose: %v", err))
		}
	case Entrypoint:
		if len(v.Argv) == 0 {
			return fail("entrypoint has no arguments")
		}
		if strings.TrimSpace(v.Argv[0]) == "" {
			return fail("entrypoint command must not be empty")
		}
	default:
		return fail(fmt.Sprintf("unknown instruction type %T", inst))
	}
	return nil
}

func validatePath(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("path must not be empty")
	}
	if strings.ContainsAny(p, " \t\n") {
		return fmt.Errorf("path %q must not contain whitespace", p)
	}
	return nil
}

func validateKey(k string) error {
	if k == "" {
		return fmt.Errorf("key must not be empty")
	}
	for i, c := range k {
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return fmt.Errorf("key %q must not start with a digit", k)
			}
		default:
			return fmt.Errorf("key %q contains invalid character %q", k, c)
		}
	}
	return nil
}

// Lint reports non-fatal findings on a valid plan. Currently it walks the
// copy graph depth-first from the final stage and flags intermediate stages
// whose output never reaches the shipped image.
func (p *Plan) Lint() []string {
	if len(p.Stages) == 0 {
		return nil
	}
	index := make(map[StageName]int, len(p.Stages))
	for i, stage := range p.Stages {
		index[stage.Name] = i
	}
	reached := make(map[int]bool, len(p.Stages))
	var visit func(i int)
	visit = func(i int) {
		if reached[i] {
			return
		}
		reached[i] = true
		for _, inst := range p.Stages[i].Instructions {
			if cp, ok := inst.(CopyFromStage); ok {
				if ref, ok := index[cp.Stage]; ok {
					visit(ref)
				}
			}
		}
	}
	visit(len(p.Stages) - 1)

	var findings []string
	for i, stage := range p.Stages[:len(p.Stages)-1] {
		if !reached[i] {
			findings = append(findings, fmt.Sprintf("stage %q is never imported by a later stage", stage.Name))
		}
	}
	return findings
}
