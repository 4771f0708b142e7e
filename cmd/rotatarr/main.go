package main

import "github.com/rotatarr/rotatarr/internal/cli"

func main() {
	cli.Execute()
}
