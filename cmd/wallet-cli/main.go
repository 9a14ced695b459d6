package main

import "wallet-signer/cmd/wallet-cli/cmd"

func main() {
	cmd.Execute()
}
