package main

import "github.com/vaultmind/vaultmind/cli"

func main() {
	cli.Execute()
}
