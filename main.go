package main

import "github.com/jmehdipour/optin-gateway/cmd"

func main() {
	cmd.Execute()
}
