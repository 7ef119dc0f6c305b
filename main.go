package main

import "github.com/fakeyudi/promptwatch/cmd"

func main() {
	cmd.Execute()
}
