// Command meshsigctl is the CLI client for the meshsigd daemon.
package main

import "github.com/meshsig/meshsig/cmd/meshsigctl/commands"

func main() {
	commands.Execute()
}
