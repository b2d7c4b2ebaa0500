// The main package for the animedb executable.
package main

import (
	"os"

	"github.com/JakeFAU/anime-catalog-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	os.Exit(cmd.Execute())
}
