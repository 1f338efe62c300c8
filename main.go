package main

import "github.com/conductorhq/conductor/cmd"

func main() {
	cmd.Execute()
}
