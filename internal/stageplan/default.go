// SPDX-License-Identifier: MPL-2.0

package stageplan

import "labboot/pkg/types"

// Base images for the built-in plan. The runtime base is the vendor image
// that carries the GPU userspace; pinning its tag keeps rebuilds stable.
const (
	DefaultBuilderImage    = "docker.io/library/python:3.11-slim-bookworm"
	DefaultBootloaderImage = "docker.io/library/golang:1.25-bookworm"
	DefaultRuntimeImage    = "nvcr.io/nvidia/pytorch:24.05-py3"
)

// Default returns the built-in lab image plan.
//
// Three stages: "jupyter-builder" pre-builds the notebook front end wheels,
// "bootloader" compiles the labboot binary itself, and "runtime" assembles
// the shipped image on the GPU base. The runtime stage compiles the native
// DICOM converter and purges the toolchain inside a single Run, so no layer
// of the shipped image ever contains the compilers.
func Default() *Plan {
	return &Plan{
		Stages: []Stage{
			{
				Name: "jupyter-builder",
				From: DefaultBuilderImage,
				Instructions: []Instruction{
					Env{Key: "PIP_NO_CACHE_DIR", Value: "1"},
					Run{Commands: []string{
						"apt-get update",
						"apt-get install -y --no-install-recommends nodejs npm",
						"rm -rf /var/lib/apt/lists/*",
					}},
					Run{Commands: []string{
						"python -m pip install --upgrade pip wheel",
						"pip wheel --wheel-dir /opt/wheels jupyterlab==4.2.5 jupyterlab-git==0.50.1 ipywidgets==8.1.3",
					}},
				},
			},
			{
				Name: "bootloader",
				From: DefaultBootloaderImage,
				Instructions: []Instruction{
					Workdir{Dir: "/src"},
					Copy{Src: ".", Dst: "/src"},
					Env{Key: "CGO_ENABLED", Value: "0"},
					Run{Commands: []string{
						"go build -trimpath -o /out/labboot .",
					}},
				},
			},
			{
				Name: "runtime",
				From: DefaultRuntimeImage,
				Instructions: []Instruction{
					Env{Key: "DEBIAN_FRONTEND", Value: "noninteractive"},
					Run{Commands: []string{
						"apt-get update",
						"apt-get install -y --no-install-recommends build-essential cmake git pigz",
						"git clone --depth 1 --branch v1.0.20240202 https://github.com/rordenlab/dcm2niix /tmp/dcm2niix",
						"cmake -S /tmp/dcm2niix -B /tmp/dcm2niix/build -DCMAKE_BUILD_TYPE=Release",
						"cmake --build /tmp/dcm2niix/build --target install",
						"rm -rf /tmp/dcm2niix",
						"apt-get purge -y build-essential cmake git",
						"apt-get autoremove -y",
						"rm -rf /var/lib/apt/lists/*",
					}},
					CopyFromStage{Stage: "jupyter-builder", Src: "/opt/wheels", Dst: "/opt/wheels"},
					Run{Commands: []string{
						"pip install --no-index --find-links /opt/wheels jupyterlab jupyterlab-git ipywidgets",
						"rm -rf /opt/wheels",
					}},
					Copy{Src: "vendor/nnunet", Dst: "/opt/nnunet"},
					Run{Commands: []string{
						"pip install --no-deps -e /opt/nnunet",
					}},
					CopyFromStage{Stage: "bootloader", Src: "/out/labboot", Dst: "/usr/local/bin/labboot"},
					Label{Key: "org.opencontainers.image.title", Value: "labboot workspace"},
					Workdir{Dir: "/workspace"},
					Expose{Port: types.ListenPort(8888)},
					Entrypoint{Argv: []string{"labboot", "start"}},
				},
			},
		},
	}
}
