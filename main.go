package main

import "github.com/diku-dk/staffeli-go/cmd"

func main() {
	cmd.Execute()
}
