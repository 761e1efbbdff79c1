package main

import (
	"log"
	"os"

	"github.com/tripboard/core/cmd/api/commands"
)

// @title TripBoard API
// @version 1.0
// @description Shared trip planning document store

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and a token from 'tripboard token issue'.

func main() {
	rootCmd := commands.NewRootCommand()

	// Execute root command
	if err := rootCmd.Execute(); err != nil {
		log.Printf("Command execution failed: %v", err)
		os.Exit(1)
	}
}
