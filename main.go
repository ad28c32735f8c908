package main

import "github.com/craftlink/craftlink/cmd"

func main() {
	cmd.Execute()
}
