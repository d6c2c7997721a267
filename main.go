package main

import (
	"os"

	"grimm.is/holdover/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
