// The main package for the glovebrand executable.
package main

import "github.com/berginj/glovebrand/cmd"

func main() {
	cmd.Execute()
}
