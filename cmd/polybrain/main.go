package main

import "github.com/PolybrainAI/polybrain-core/internal/cli"

func main() {
	cli.Execute()
}
