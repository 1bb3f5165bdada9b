package main

import (
	"log"

	"whiteboard-server/app"
	"whiteboard-server/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	server, err := app.New(cfg)
	if err != nil {
		log.Fatalf("app: %v", err)
	}
	defer server.Close()

	log.Fatal(server.Start())
}
