// SPDX-License-Identifier: MPL-2.0

package stageplan

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// runIndent continues a multi-command RUN block. Four spaces keeps the
// continuation lines visually inside the instruction.
const runIndent = "    "

// Render validates the plan and writes it as a Dockerfile. Every Run block
// is parse-checked as POSIX shell before rendering, so a plan that renders
// cleanly never produces a Dockerfile the shell rejects at build time.
// Rendering is a pure function of the plan.
func (p *Plan) Render(w io.Writer) error {
	if err := p.Validate(); err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("# syntax=docker/dockerfile:1\n")
	sb.WriteString("# Generated by labboot render; edit the plan manifest instead.\n")

	for _, stage := range p.Stages {
		fmt.Fprintf(&sb, "\nFROM %s AS %s\n", stage.From, stage.Name)
		for i, inst := range stage.Instructions {
			if err := renderInstruction(&sb, stage.Name, i, inst); err != nil {
				return err
			}
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func renderInstruction(sb *strings.Builder, stage StageName, index int, inst Instruction) error {
	switch v := inst.(type) {
	case Run:
		script := strings.Join(v.Commands, " && ")
		if err := checkShell(script); err != nil {
			return &InvalidInstructionError{Stage: stage, Index: index, Reason: fmt.Sprintf("run step is not valid shell: %v", err)}
		}
		fmt.Fprintf(sb, "RUN %s\n", strings.Join(v.Commands, " && \\\n"+runIndent))
	case CopyFromStage:
		fmt.Fprintf(sb, "COPY --from=%s %s %s\n", v.Stage, v.Src, v.Dst)
	case Copy:
		fmt.Fprintf(sb, "COPY %s %s\n", v.Src, v.Dst)
	case Env:
		quoted, err := quoteValue(v.Value)
		if err != nil {
			return &InvalidInstructionError{Stage: stage, Index: index, Reason: fmt.Sprintf("env value: %v", err)}
		}
		fmt.Fprintf(sb, "ENV %s=%s\n", v.Key, quoted)
	case Workdir:
		fmt.Fprintf(sb, "WORKDIR %s\n", v.Dir)
	case Label:
		quoted, err := quoteValue(v.Value)
		if err != nil {
			return &InvalidInstructionError{Stage: stage, Index: index, Reason: fmt.Sprintf("label value: %v", err)}
		}
		fmt.Fprintf(sb, "LABEL %s=%s\n", v.Key, quoted)
	case Expose:
		fmt.Fprintf(sb, "EXPOSE %d\n", v.Port)
	case Entrypoint:
		argv, err := json.Marshal(v.Argv)
		if err != nil {
			return &InvalidInstructionError{Stage: stage, Index: index, Reason: fmt.Sprintf("entrypoint: %v", err)}
		}
		fmt.Fprintf(sb, "ENTRYPOINT %s\n", argv)
	default:
		return &InvalidInstructionError{Stage: stage, Index: index, Reason: fmt.Sprintf("unknown instruction type %T", inst)}
	}
	return nil
}

// checkShell parses the script without running it.
func checkShell(script string) error {
	parser := syntax.NewParser(syntax.Variant(syntax.LangPOSIX))
	_, err := parser.Parse(strings.NewReader(script), "run")
	return err
}

// quoteValue quotes a value for use inside a Dockerfile ENV or LABEL
// instruction, which shares shell word quoting rules.
func quoteValue(value string) (string, error) {
	return syntax.Quote(value, syntax.LangPOSIX)
}
