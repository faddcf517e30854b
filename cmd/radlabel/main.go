package main

import (
	"github.com/radlabel/radlabel/pkg/cli"
)

func main() {
	cli.Execute()
}
