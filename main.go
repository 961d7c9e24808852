package main

import "wna/cmd"

func main() {
	cmd.Execute()
}
