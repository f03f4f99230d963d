package main

import (
	"github.com/tanpawarit/factory-copilot/cmd"
	_ "github.com/tanpawarit/factory-copilot/pkg/logger/autoload"
)

func main() {
	cmd.Execute()
}
