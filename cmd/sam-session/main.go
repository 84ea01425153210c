// Package main provides the sam-session command, which creates a SAM STREAM
// session on an I2P router and holds it open until interrupted.
//
// Usage:
//
//	sam-session create [flags]
//	sam-session version
//
// Settings are read from an optional TOML file (--config), then the
// SAM_ADDR and SAM_DEBUG environment variables, then flags.
package main

import (
	"os"

	"github.com/go-i2p/go-sam-session/cmd/sam-session/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
