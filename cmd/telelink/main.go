package main

import (
	"os"

	"github.com/Dicklesworthstone/telelink/internal/cli"
)

// Build metadata is set through ldflags:
//
//	go build -ldflags "-X github.com/Dicklesworthstone/telelink/internal/version.Version=1.0.0"
func main() {
	os.Exit(cli.Execute())
}
