// Command reconciler collects catalog identifiers, validates them against a
// baseline and records region restrictions.
package main

import (
	"os"

	"github.com/JakeFAU/catalog-reconciler/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
