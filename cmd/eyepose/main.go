package main

import "github.com/gazelab/eyepose/cmd/eyepose/cmd"

func main() {
	cmd.Execute()
}
