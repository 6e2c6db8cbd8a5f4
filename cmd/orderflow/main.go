package main

import "stock-orderflow/internal/cli"

func main() {
	cli.Execute()
}
