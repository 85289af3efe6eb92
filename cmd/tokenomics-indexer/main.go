package main

import "tokenomics-indexer/internal/cli"

func main() {
	cli.Execute()
}
