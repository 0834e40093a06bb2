package main

import "github.com/nametidy/nametidy/internal/cmd"

func main() {
	cmd.Execute()
}
