// Command travelrouter is the smart travel assistant. It answers flight status
// and historical flight questions in an interactive chat, as a one-shot query,
// or as an HTTP, WebSocket and gRPC service.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
