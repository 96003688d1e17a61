package main

import (
	_ "embed"

	"github.com/martinribelotta/uPyIDE/cmd"
)

//go:embed config.example.yaml
var defaultConfig []byte

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit)
	cmd.SetDefaultConfig(defaultConfig)
	cmd.Execute()
}
