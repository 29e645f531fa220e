package main

import "recurset/cmd/recurset/commands"

func main() {
	commands.Execute()
}
