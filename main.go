// The main package for the furniture-crawler executable.
package main

import (
	"os"

	"github.com/furniture-helper/furniture-crawler/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
