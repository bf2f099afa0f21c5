package main

import "github.com/mochilink/mochi-sync/internal/cli"

func main() {
	cli.Execute()
}
