package main

import "github.com/someone42/hardware-bitcoin-wallet-sub001/cmd"

func main() {
	cmd.Execute()
}
