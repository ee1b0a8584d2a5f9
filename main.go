package main

import "getbox/cmd"

func main() {
	cmd.Execute()
}
