// SPDX-License-Identifier: EPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type Id int

const (
	SettingsFileUnreadableId Id = iota + 1
	WorkspacePackageMissingId
	InstallerNotFoundId
	InstallerFailedId
	HookFailedId
	RuntimeConfigWriteFailedId
	ServerLaunchFailedId
	PlanParseErrorId
	UndefinedStageId
	EngineNotFoundId
	ImageBuildFailedId
	ConfigLoadFailedId
	PermissionDeniedId
)

type MarkdownMsg string

type HttpLink string

type Renderer interface {
	Render(in string, stylePath string) (string, error)
}

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink  // must never be empty, because we need to have docs about all issue types
	extLinks []HttpLink  // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n"
		extraMd += "## See also: "
		for _, link := range i.docLinks {
			extraMd += "- [" + string(link) + "]"
		}
		for _, link := range i.extLinks {
			extraMd += "- [" + string(link) + "]"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	settingsFileUnreadableIssue = &Issue{
		id: SettingsFileUnreadableId,
		mdMsg: `
# Could not read the settings file!

A settings file exists but labboot could not read it. Boot stops here
because a half-applied configuration is worse than none.

## Default location:
- <workspace>/config/lab.env

## Things you can try:
- Check the file permissions:
~~~
$ ls -l /workspace/config/lab.env
~~~

- Make it readable by the lab user:
~~~
$ chmod 0644 /workspace/config/lab.env
~~~

- Remove it to boot with defaults (labboot treats a missing file as
  "no extra settings" and keeps going).`,
	}

	workspacePackageMissingIssue = &Issue{
		id: WorkspacePackageMissingId,
		mdMsg: `
# Workspace package is not installable!

A package directory exists in the workspace, so labboot tried to install
it in editable mode, but the installer rejected it.

## What labboot expects:
- <workspace>/project containing a pyproject.toml or setup.py

## Things you can try:
- Check the package metadata:
~~~
$ pip install -e /workspace/project
~~~

- Remove the directory if it is not meant to be a package; labboot skips
  the editable install when the directory is absent.`,
	}

	installerNotFoundIssue = &Issue{
		id: InstallerNotFoundId,
		mdMsg: `
# Package installer not found!

labboot needs the configured installer (pip by default) on PATH inside
the image, and it is not there.

## Things you can try:
- Rebuild the image from the built-in plan, which always includes pip:
~~~
$ labboot image build --tag mylab:latest
~~~

- If you use a custom plan, make sure the runtime stage starts from a
  base image with Python installed

- Override the installer binary in the config:
~~~cue
installer: "pip3"
~~~`,
	}

	installerFailedIssue = &Issue{
		id: InstallerFailedId,
		mdMsg: `
# Package installation failed!

The installer exited with a non-zero code. labboot aborts the boot and
the container exits with the installer's code, so the failure is visible
to the orchestrator that started it.

## Common causes:
- No network access to the package index
- A pinned version that does not exist on the index
- A broken workspace package

## Things you can try:
- Re-run the failing install by hand inside the image
- Check the pinned versions in your config against the index
- Check the proxy settings in the settings file`,
	}

	hookFailedIssue = &Issue{
		id: HookFailedId,
		mdMsg: `
# Boot hook failed!

A hook script in the hooks directory exited with a non-zero code, so the
boot stopped before the notebook server was started.

## Hook location:
- <workspace>/config/boot.d/*.sh, run in lexical order

## Things you can try:
- Run the hook by hand to see its output
- Fix the script, or remove it from boot.d
- Hooks run with the merged boot environment; check that the variables
  the script needs are present in the settings file`,
	}

	runtimeConfigWriteFailedIssue = &Issue{
		id: RuntimeConfigWriteFailedId,
		mdMsg: `
# Could not write the server configuration!

labboot regenerates the notebook server configuration on every boot and
could not write it.

## Things you can try:
- Check that the config directory is writable by the lab user:
~~~
$ ls -ld ~/.jupyter
~~~

- Check for a full disk or a read-only filesystem
- If the directory is a mount, make sure the mount allows writes`,
	}

	serverLaunchFailedIssue = &Issue{
		id: ServerLaunchFailedId,
		mdMsg: `
# Could not launch the notebook server!

Provisioning finished, but replacing the boot process with the notebook
server failed.

## Common causes:
- jupyter is not installed in the image
- jupyter is installed outside PATH

## Things you can try:
- Check inside the image:
~~~
$ jupyter lab --version
~~~

- Rebuild from the built-in plan, which bakes the server into the
  runtime stage`,
	}

	planParseErrorIssue = &Issue{
		id: PlanParseErrorId,
		mdMsg: `
# Failed to parse the build plan!

Your plan manifest contains syntax errors or fields the schema does not
know.

## Common issues:
- Invalid CUE syntax (missing quotes, braces, etc.)
- A step that sets more than one instruction kind
- Missing required fields (name, from)

## Things you can try:
- Check the error message above for the line and field
- Validate without building:
~~~
$ labboot render --plan mylab.cue --check
~~~

## Example of a valid stage:
~~~cue
stages: [
	{
		name: "runtime"
		from: "docker.io/library/python:3.11-slim-bookworm"
		steps: [
			{run: ["pip install jupyterlab"]},
			{expose: 8888},
			{entrypoint: ["labboot", "start"]},
		]
	},
]
~~~`,
	}

	undefinedStageIssue = &Issue{
		id: UndefinedStageId,
		mdMsg: `
# Build plan references an undefined stage!

A copy step names a stage that is not defined earlier in the plan. A
stage may only copy from stages that appear before it; forward and
self references never have an output to copy from.

## Things you can try:
- Check the stage name for typos
- Move the referenced stage above the stage that copies from it:
~~~cue
stages: [
	{name: "builder", ...},
	{
		name: "runtime"
		steps: [{copy: {from: "builder", src: "/out", dst: "/opt"}}]
		...
	},
]
~~~`,
	}

	engineNotFoundIssue = &Issue{
		id: EngineNotFoundId,
		mdMsg: `
# Container engine not found!

Building a lab image needs a container engine and none is available.

## Supported container engines:
- **Docker**
- **Podman**

## Things you can try:
- Install Docker:
  - https://docs.docker.com/get-docker/

- Install Podman:
  - Linux: ` + "`sudo apt install podman`" + ` or ` + "`sudo dnf install podman`" + `
  - macOS: ` + "`brew install podman`" + `

- Configure your preferred engine in the labboot config:
~~~cue
engine: "podman"  // or "docker"
~~~`,
	}

	imageBuildFailedIssue = &Issue{
		id: ImageBuildFailedId,
		mdMsg: `
# Image build failed!

The container engine reported a build failure.

## Things you can try:
- Check the build output above for the failing instruction
- Validate the plan before building:
~~~
$ labboot render --plan mylab.cue --check
~~~

- Make sure the base images are reachable (try: docker pull <base-image>)
- Retry without the cache:
~~~
$ labboot image build --tag mylab:latest --no-cache
~~~`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

Could not load the labboot configuration file.

## Configuration file locations:
- Linux: ~/.config/labboot/config.cue
- macOS: ~/Library/Application Support/labboot/config.cue
- Windows: %APPDATA%\labboot\config.cue

## Things you can try:
- Create a default configuration:
~~~
$ labboot config init
~~~

- Check the configuration syntax
- Remove the config file to use defaults:
~~~
$ rm ~/.config/labboot/config.cue
~~~

## Example configuration:
~~~cue
workspace: {
	dir: "/workspace"
}
server: {
	port: 8888
}
pins: [
	{name: "numpy", version: "1.26.4"},
]
~~~`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

You don't have permission to perform this operation.

## Common causes:
- The workspace mount is owned by a different user
- The server config directory is not writable
- The container engine requires elevated permissions

## Things you can try:
- Check file/directory permissions on the workspace mount
- For image builds, ensure you're in the docker/podman group:
~~~
$ sudo usermod -aG docker $USER
~~~

- Use rootless containers with Podman`,
	}

	issues = map[Id]*Issue{
		settingsFileUnreadableIssue.Id():   settingsFileUnreadableIssue,
		workspacePackageMissingIssue.Id():  workspacePackageMissingIssue,
		installerNotFoundIssue.Id():        installerNotFoundIssue,
		installerFailedIssue.Id():          installerFailedIssue,
		hookFailedIssue.Id():               hookFailedIssue,
		runtimeConfigWriteFailedIssue.Id(): runtimeConfigWriteFailedIssue,
		serverLaunchFailedIssue.Id():       serverLaunchFailedIssue,
		planParseErrorIssue.Id():           planParseErrorIssue,
		undefinedStageIssue.Id():           undefinedStageIssue,
		engineNotFoundIssue.Id():           engineNotFoundIssue,
		imageBuildFailedIssue.Id():         imageBuildFailedIssue,
		configLoadFailedIssue.Id():         configLoadFailedIssue,
		permissionDeniedIssue.Id():         permissionDeniedIssue,
	}
)

func Values() []*Issue {
	return maps.Values(issues)
}

func Get(id Id) *Issue {
	return issues[id]
}
