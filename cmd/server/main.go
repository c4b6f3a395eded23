package main

import "coreops/cmd/cli"

func main() {
	cli.Execute()
}
