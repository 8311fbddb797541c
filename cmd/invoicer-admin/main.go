// Command invoicer-admin runs maintenance tasks against an invoicer deployment.
package main

import (
	"github.com/turtacn/invoicer/cmd/cli"
)

func main() {
	cli.Execute()
}
