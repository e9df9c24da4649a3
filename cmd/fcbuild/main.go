// Command fcbuild is the analysis-and-build engine's CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/latticeforge/fcbuild/cmd/fcbuild/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fcbuild:", err)
		os.Exit(1)
	}
}
