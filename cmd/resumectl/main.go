// Command resumectl runs administrative tasks against the resume evaluator's stores.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(openBackend).Execute(); err != nil {
		os.Exit(1)
	}
}
