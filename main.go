package main

import "github.com/realgrapedrop/xrpl-validator-dashboard-sub000/cmd"

func main() {
	cmd.Execute()
}
