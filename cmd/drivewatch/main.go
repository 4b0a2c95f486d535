package main

import "github.com/thesammykins/onlydrives-alert-bot/internal/cli"

func main() {
	cli.Execute()
}
