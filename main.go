// SPDX-License-Identifier: MPL-2.0

// labboot is the build tool and entrypoint of a GPU lab image: the same
// binary renders image plans and drives container builds on a workstation,
// then boots the workspace and execs the notebook server inside the image.
package main

import cmd "labboot/cmd/labboot"

func main() {
	cmd.Execute()
}
