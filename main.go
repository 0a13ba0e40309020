package main

import "github.com/sw33tLie/brickscope/cmd"

func main() {
	cmd.Execute()
}
