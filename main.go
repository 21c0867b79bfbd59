package main

import "github.com/gaurav-prasanna/pageclone/cmd"

func main() {
	cmd.Execute()
}
