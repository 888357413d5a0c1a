package main

import "github.com/metocean/harvester/internal/cli"

func main() {
	cli.Execute()
}
