package main

import "github.com/brocaar/chirpstack-classa-device/cmd/chirpstack-classa-device/cmd"

var version string // set by the compiler

func main() {
	cmd.Execute(version)
}
