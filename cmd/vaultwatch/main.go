package main

import "vault-monitor/internal/cli"

func main() {
	cli.Execute()
}
