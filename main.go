package main

import "github.com/nicklasfrahm/rcmd/cmd"

func main() {
	cmd.Execute()
}
