package main

import (
	"github.com/joho/godotenv"

	"swaptinsight/internal/cli"
)

func main() {
	_ = godotenv.Load()
	cli.Execute()
}
