package main

import "tgmatch/internal/cli"

// version is set with -ldflags "-X main.version=..."
var version string

func main() {
	cli.Init(version)
	cli.Execute()
}
