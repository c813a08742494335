package main

import "github.com/simplefpvtimer/sftctl/cmd"

func main() {
	cmd.Execute()
}
