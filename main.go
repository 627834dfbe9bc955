// SPDX-License-Identifier: MIT
package main

import (
	"log"
	"os"

	"audiobridge/cmd"
	"audiobridge/pkg/build"
)

// main is the entry point for the audio bridge.
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Load configuration and parse command line arguments
//
// 2. Concurrent Phase (Hot Path):
//   - Capture on a dedicated OS thread and analyse fixed hops
//   - Dispatch spectrum, wave and VU frames to the transports
//   - Follow the media session
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Finish any recording and release the device
func main() {
	// Initialize build information including version, commit hash, and build time
	if err := build.Initialize(); err != nil {
		log.Fatal(err)
	}
	os.Exit(cmd.Main())
}
