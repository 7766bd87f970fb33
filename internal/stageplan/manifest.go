// SPDX-License-Identifier: MPL-2.0

package stageplan

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"labboot/pkg/cueutil"
	"labboot/pkg/types"
)

//go:embed stageplan_schema.cue
var manifestSchema []byte

type (
	// Manifest is the CUE-validated on-disk form of a plan.
	Manifest struct {
		Stages []ManifestStage `json:"stages"`
	}

	// ManifestStage declares one stage of the manifest.
	ManifestStage struct {
		Name  string         `json:"name"`
		From  string         `json:"from"`
		Steps []ManifestStep `json:"steps,omitempty"`
	}

	// ManifestStep holds exactly one instruction kind. The CUE schema
	// enforces the exactly-one shape; ToPlan re-checks it for manifests
	// built in Go.
	ManifestStep struct {
		Run        []string      `json:"run,omitempty"`
		Copy       *ManifestCopy `json:"copy,omitempty"`
		Env        *ManifestKV   `json:"env,omitempty"`
		Workdir    string        `json:"workdir,omitempty"`
		Label      *ManifestKV   `json:"label,omitempty"`
		Expose     int           `json:"expose,omitempty"`
		Entrypoint []string      `json:"entrypoint,omitempty"`
	}

	// ManifestCopy declares a copy step. From selects an earlier stage;
	// when empty the source is the build context.
	ManifestCopy struct {
		From string `json:"from,omitempty"`
		Src  string `json:"src"`
		Dst  string `json:"dst"`
	}

	// ManifestKV is a key/value pair for env and label steps.
	ManifestKV struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
)

// LoadManifest reads and validates a plan manifest from path and converts it
// into a validated Plan.
func LoadManifest(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan manifest: %w", err)
	}
	return LoadManifestBytes(data, filepath.Base(path))
}

// LoadManifestBytes validates raw manifest content against the embedded
// schema and converts it into a validated Plan. The filename is used in
// error messages only.
func LoadManifestBytes(data []byte, filename string) (*Plan, error) {
	result, err := cueutil.ParseAndDecode[Manifest](manifestSchema, data, "#Plan", cueutil.WithFilename(filename))
	if err != nil {
		return nil, err
	}
	plan, err := result.Value.ToPlan()
	if err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// ToPlan converts the manifest into the in-memory plan form.
func (m *Manifest) ToPlan() (*Plan, error) {
	plan := &Plan{Stages: make([]Stage, 0, len(m.Stages))}
	for _, ms := range m.Stages {
		stage := Stage{
			Name: StageName(ms.Name),
			From: ms.From,
		}
		for i, step := range ms.Steps {
			inst, err := step.toInstruction()
			if err != nil {
				return nil, fmt.Errorf("stage %q step %d: %w", ms.Name, i+1, err)
			}
			stage.Instructions = append(stage.Instructions, inst)
		}
		plan.Stages = append(plan.Stages, stage)
	}
	return plan, nil
}

func (s *ManifestStep) toInstruction() (Instruction, error) {
	var insts []Instruction
	if len(s.Run) > 0 {
		insts = append(insts, Run{Commands: s.Run})
	}
	if s.Copy != nil {
		if s.Copy.From != "" {
			insts = append(insts, CopyFromStage{Stage: StageName(s.Copy.From), Src: s.Copy.Src, Dst: s.Copy.Dst})
		} else {
			insts = append(insts, Copy{Src: s.Copy.Src, Dst: s.Copy.Dst})
		}
	}
	if s.Env != nil {
		insts = append(insts, Env{Key: s.Env.Key, Value: s.Env.Value})
	}
	if s.Workdir != "" {
		insts = append(insts, Workdir{Dir: s.Workdir})
	}
	if s.Label != nil {
		insts = append(insts, Label{Key: s.Label.Key, Value: s.Label.Value})
	}
	if s.Expose != 0 {
		insts = append(insts, Expose{Port: types.ListenPort(s.Expose)})
	}
	if len(s.Entrypoint) > 0 {
		insts = append(insts, Entrypoint{Argv: s.Entrypoint})
	}
	switch len(insts) {
	case 0:
		return nil, fmt.Errorf("step sets no instruction; want exactly one of run, copy, env, workdir, label, expose, entrypoint")
	case 1:
		return insts[0], nil
	default:
		return nil, fmt.Errorf("step sets %d instructions; want exactly one of run, copy, env, workdir, label, expose, entrypoint", len(insts))
	}
}
