// SPDX-License-Identifier: MPL-2.0

// Package container shells out to Docker or Podman to build lab images.
// Only the build-side operations live here; at boot time the image is
// already assembled and nothing in the entrypoint talks to an engine.
package container
