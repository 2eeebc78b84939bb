package main

import "github.com/eventtix/multisafepay-provider/cmd"

func main() {
	cmd.Execute()
}
