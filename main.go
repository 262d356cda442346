package main

import "github.com/Proteus-Audio/proteus-cli/cmd"

func main() {
	cmd.Execute()
}
