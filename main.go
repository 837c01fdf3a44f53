package main

import "github.com/tanq16/megumi/cmd"

func main() {
	cmd.Execute()
}
