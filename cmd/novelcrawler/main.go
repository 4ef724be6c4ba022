// The main package for the novelcrawler executable.
package main

import (
	"github.com/JakeFAU/novel-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
