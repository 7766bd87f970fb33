// SPDX-License-Identifier: MPL-2.0

// Package stageplan models the lab image build as an ordered graph of
// stages. Declaration order is the build order; a stage may import output
// paths from any strictly earlier stage. A validated plan renders to a
// Dockerfile deterministically.
package stageplan

import (
	"errors"
	"fmt"

	"labboot/pkg/types"
)

var (
	// ErrEmptyPlan is returned when a plan declares no stages.
	ErrEmptyPlan = errors.New("build plan has no stages")

	// ErrInvalidStageName is the sentinel error wrapped by InvalidStageNameError.
	ErrInvalidStageName = errors.New("invalid stage name")

	// ErrDuplicateStage is the sentinel error wrapped by DuplicateStageError.
	ErrDuplicateStage = errors.New("duplicate stage name")

	// ErrUndefinedStage is the sentinel error wrapped by UndefinedStageError.
	ErrUndefinedStage = errors.New("undefined stage reference")

	// ErrSelfReference is the sentinel error wrapped by SelfReferenceError.
	ErrSelfReference = errors.New("stage references itself")

	// ErrInvalidInstruction is the sentinel error wrapped by InvalidInstructionError.
	ErrInvalidInstruction = errors.New("invalid instruction")
)

type (
	// StageName identifies a stage. Names are lowercase, start with an
	// alphanumeric character, and may contain '.', '_' and '-'.
	StageName string

	// Plan is an ordered list of stages. The declaration order is the total
	// build order; the final stage is the image that ships.
	Plan struct {
		Stages []Stage
	}

	// Stage is one image layer sequence built FROM a base image.
	Stage struct {
		Name         StageName
		From         string
		Instructions []Instruction
	}

	// Instruction is one rendered build step. The set is closed; the
	// renderer type-switches over it.
	Instruction interface {
		isInstruction()
	}

	// Run executes shell commands. All commands of one Run render into a
	// single layer, so an install-toolchain/build/purge sequence placed in
	// one Run never leaves the toolchain behind in any layer.
	Run struct {
		Commands []string
	}

	// CopyFromStage imports an output path from a strictly earlier stage.
	CopyFromStage struct {
		Stage StageName
		Src   string
		Dst   string
	}

	// Copy copies a path from the build context.
	Copy struct {
		Src string
		Dst string
	}

	// Env sets an environment variable for subsequent steps and the final image.
	Env struct {
		Key   string
		Value string
	}

	// Workdir sets the working directory.
	Workdir struct {
		Dir string
	}

	// Label attaches image metadata.
	Label struct {
		Key   string
		Value string
	}

	// Expose documents the port the final image serves on.
	Expose struct {
		Port types.ListenPort
	}

	// Entrypoint sets the container entrypoint in exec form.
	Entrypoint struct {
		Argv []string
	}

	// InvalidStageNameError is returned for a malformed stage name.
	InvalidStageNameError struct {
		Name StageName
	}

	// DuplicateStageError is returned when two stages share a name.
	DuplicateStageError struct {
		Name StageName
	}

	// UndefinedStageError is returned when a copy references a stage that
	// is not defined earlier in the plan (unknown name or forward reference).
	UndefinedStageError struct {
		Stage StageName
		Ref   StageName
	}

	// SelfReferenceError is returned when a stage copies from itself.
	SelfReferenceError struct {
		Stage StageName
	}

	// InvalidInstructionError is returned for a structurally broken
	// instruction inside an otherwise well-formed stage.
	InvalidInstructionError struct {
		Stage  StageName
		Index  int
		Reason string
	}
)

func (Run) isInstruction()           {}
func (CopyFromStage) isInstruction() {}
func (Copy) isInstruction()          {}
func (Env) isInstruction()           {}
func (Workdir) isInstruction()       {}
func (Label) isInstruction()         {}
func (Expose) isInstruction()        {}
func (Entrypoint) isInstruction()    {}

// String returns the stage name as a plain string.
func (n StageName) String() string { return string(n) }

// Validate checks the stage name format.
func (n StageName) Validate() error {
	if n == "" {
		return &InvalidStageNameError{Name: n}
	}
	for i, c := range n {
		switch {
		case (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9'):
		case c == '.' || c == '_' || c == '-':
			if i == 0 {
				return &InvalidStageNameError{Name: n}
			}
		default:
			return &InvalidStageNameError{Name: n}
		}
	}
	return nil
}

// Error implements the error interface for InvalidStageNameError.
func (e *InvalidStageNameError) Error() string {
	return fmt.Sprintf("invalid stage name %q: must be lowercase, start alphanumeric, and contain only [a-z0-9._-]", e.Name)
}

// Unwrap returns ErrInvalidStageName for errors.Is() compatibility.
func (e *InvalidStageNameError) Unwrap() error { return ErrInvalidStageName }

// Error implements the error interface for DuplicateStageError.
func (e *DuplicateStageError) Error() string {
	return fmt.Sprintf("stage %q is defined more than once", e.Name)
}

// Unwrap returns ErrDuplicateStage for errors.Is() compatibility.
func (e *DuplicateStageError) Unwrap() error { return ErrDuplicateStage }

// Error implements the error interface for UndefinedStageError.
func (e *UndefinedStageError) Error() string {
	return fmt.Sprintf("stage %q copies from stage %q which has not been defined yet", e.Stage, e.Ref)
}

// Unwrap returns ErrUndefinedStage for errors.Is() compatibility.
func (e *UndefinedStageError) Unwrap() error { return ErrUndefinedStage }

// Error implements the error interface for SelfReferenceError.
func (e *SelfReferenceError) Error() string {
	return fmt.Sprintf("stage %q copies from itself", e.Stage)
}

// Unwrap returns ErrSelfReference for errors.Is() compatibility.
func (e *SelfReferenceError) Unwrap() error { return ErrSelfReference }

// Error implements the error interface for InvalidInstructionError.
func (e *InvalidInstructionError) Error() string {
	return fmt.Sprintf("stage %q instruction %d: %s", e.Stage, e.Index+1, e.Reason)
}

// Unwrap returns ErrInvalidInstruction for errors.Is() compatibility.
func (e *InvalidInstructionError) Unwrap() error { return ErrInvalidInstruction }
