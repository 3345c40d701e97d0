package main

import (
	"github.com/emiliensocchi/aztop/cmd"
)

func main() {
	cmd.Execute()
}
