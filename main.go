package main

import "github.com/sambabib/dependency-inspector/cmd"

func main() {
	cmd.Execute()
}
