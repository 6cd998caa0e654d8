package main

import "github.com/emrgen/ormstore/cmd"

func main() {
	cmd.Execute()
}
