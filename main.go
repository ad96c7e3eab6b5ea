// The main package for the degree-indexer executable.
package main

import (
	"github.com/JakeFAU/degree-indexer/cmd"
)

func main() {
	cmd.Execute()
}
