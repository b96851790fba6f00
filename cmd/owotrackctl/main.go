// owotrackctl -- CLI client for the owotrackd daemon.
package main

import "github.com/owotrack/owotrackd/cmd/owotrackctl/commands"

func main() {
	commands.Execute()
}
