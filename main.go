package main

import "taskdeck/cmd"

func main() {
	cmd.Execute()
}
