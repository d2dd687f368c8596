package main

import "github.com/credsweep/credsweep/cmd"

func main() {
	cmd.Execute()
}
