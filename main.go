package main

import (
	"gold-rate-bot/internal/cli"
)

func main() {
	cli.Execute()
}
