// The main package for the socialcrawler executable.
package main

import (
	"github.com/brandsignal/socialcrawler/cmd"
)

func main() {
	cmd.Execute()
}
