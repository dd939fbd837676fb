// Command multicall is a single binary embedding several tools. The tool is
// chosen from the name it is invoked as, or from the first argument when it
// is invoked as multicall itself.
package main

import (
	"os"

	"github.com/felixgeelhaar/multicall/interfaces/cli"
)

func main() {
	os.Exit(cli.Main(os.Args))
}
