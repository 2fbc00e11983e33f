package main

import "github.com/jtejido/kioskscanner/internal/cli"

func main() {
	cli.Execute()
}
