package main

import "github.com/josephlewis42/msh/cmd"

func main() {
	cmd.Execute()
}
