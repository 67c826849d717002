package main

import "github.com/adamgarcia4/goLearning/remotesvc/cmd"

func main() {
	cmd.Execute()
}
