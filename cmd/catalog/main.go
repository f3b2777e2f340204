// Command catalog runs the GlucoseIoT registry service and its maintenance
// tooling.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
