package main

import (
	"log"

	"wenku8-archiver/cmd"
)

func main() {
	if err := cmd.RootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
