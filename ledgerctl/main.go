package main

import "healthledger/ledgerctl/cmd"

func main() {
	cmd.Execute()
}
