package main

import "oracleguard/internal/cli"

func main() {
	cli.Execute()
}
