package main

import "flight-deals/internal/cli"

func main() {
	cli.Execute()
}
