// ./main.go
package main

import (
	"github.com/Safphere/OMG-Agent/cmd"
)

// main is the entry point for the OMG Agent CLI.
func main() {
	cmd.Execute()
}
