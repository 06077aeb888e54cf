package main

import "github.com/ardanlabs/meshchain/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
