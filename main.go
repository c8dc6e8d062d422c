package main

import "lse_trading_system/cli"

func main() {
	cli.Execute()
}
