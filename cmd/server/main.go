package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/norichat/norichat/pkg/server"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	dbPath := flag.String("db", "", "Path to SQLite database (overrides config)")
	port := flag.Int("port", 0, "TCP port to listen on (overrides config)")
	secret := flag.String("secret", "", "JWT signing secret (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	config := server.DefaultConfig()
	if *configPath != "" {
		loaded, err := server.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		config = loaded
	}

	// Command-line flags override config file values.
	if *dbPath != "" {
		config.Server.DatabasePath = *dbPath
	}
	if *port != 0 {
		config.Server.Port = *port
	}
	if *secret != "" {
		config.Server.JWTSecret = *secret
	}

	if *debug {
		server.EnableDebugLogging()
	}

	srv, err := server.New(config)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("NoriChat server started")
	log.Printf("Database: %s", config.Server.DatabasePath)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down server...")
	if err := srv.Stop(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	log.Println("Server stopped")
}
