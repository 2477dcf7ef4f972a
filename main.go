package main

import "github.com/chroniclehq/chronicle/cmd"

func main() {
	cmd.Execute()
}
