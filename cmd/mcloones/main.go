// Command mcloones runs the McLoone's terminal session server.
package main

import "github.com/mcloones/mcloones/cmd/mcloones/cmd"

func main() {
	cmd.Execute()
}
