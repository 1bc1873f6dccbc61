package main

import "restaurantrec/internal/cli"

func main() {
	cli.Execute()
}
