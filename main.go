// The main package for the crawlrunner executable.
package main

import (
	"github.com/JakeFAU/crawlrunner/cmd"
)

func main() {
	cmd.Execute()
}
