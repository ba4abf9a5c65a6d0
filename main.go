package main

import (
	"log"
	"os"

	"github.com/objstore-tools/s3fetch/cmd"
	"github.com/objstore-tools/s3fetch/config"
)

func main() {
	cnf, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cmd.Execute(cnf); err != nil {
		os.Exit(1)
	}
}
