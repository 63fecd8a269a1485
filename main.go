package main

import "github.com/tranvictor/auctioneer/cmd"

func main() {
	cmd.Execute()
}
