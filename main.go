package main

import (
	"github.com/tanpawarit/corecraft-support/cli"
	_ "github.com/tanpawarit/corecraft-support/pkg/logger/autoload"
)

func main() {
	cli.Execute()
}
