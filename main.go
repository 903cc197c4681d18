package main

import (
	"EbbFM/cmd"
)

func main() {
	cmd.Execute()
}
