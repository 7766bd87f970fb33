// SPDX-License-Identifier: MPL-2.0

// Package bootstrap is the container entrypoint brain. It drives a boot
// through its phases (Loading, Provisioning, ConfiguringRuntime, Serving)
// as an ordered list of steps, each with an optional precondition, and
// finishes by replacing the process with the notebook server.
//
// A boot is fail-fast: the first failing step moves the phase to Failed
// and nothing after it runs. There is no persistent state between boots;
// every container start re-evaluates every step against the mounted
// workspace.
package bootstrap
