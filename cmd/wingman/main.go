// Wingman is a hands-free voice copilot: it streams the microphone to a
// live agent, plays the agent's voice back and keeps a flight log of the
// notes the agent files along the way.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
