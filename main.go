package main

import "go-chorale/cmd"

func main() {
	cmd.Execute()
}
