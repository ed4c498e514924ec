package main

import "github.com/epigenlab/trackstore/internal/cli"

func main() {
	cli.Execute()
}
