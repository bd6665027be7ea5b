// Package main is the entry point for the coilmidi analyzer server
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/james-see/coilmidi/pkg/api"
	"github.com/james-see/coilmidi/pkg/config"
)

func main() {
	port := flag.Int("port", 8080, "Server port")
	profilePath := flag.String("profile", "", "Hardware profile (YAML)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	profile, err := config.Load(*profilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Profile error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Starting coilmidi analyzer on port %d...\n", *port)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", *port)

	if err := api.StartServer(*port, profile, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
