package main

import (
	"os"

	"git.home.luguber.info/inful/bazelide/cmd/bazelide/commands"
)

func main() {
	os.Exit(commands.Execute())
}
