package main

import "github.com/agentic-research/commentprep/cmd"

func main() {
	cmd.Execute()
}
