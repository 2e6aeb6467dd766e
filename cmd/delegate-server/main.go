package main

import (
	"log"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application"
	_ "github.com/grand-thief-cash/chaos/app/projects/delegate/internal/api"
	_ "github.com/grand-thief-cash/chaos/app/projects/delegate/internal/config"
	_ "github.com/grand-thief-cash/chaos/app/projects/delegate/internal/registry_ext"
	_ "github.com/grand-thief-cash/chaos/app/projects/delegate/internal/rpc"
)

var (
	Version = "v0.1.0"
)

func main() {
	app := application.GetApp()

	if err := app.Run(); err != nil {
		log.Fatalf("delegate server %s exited with error: %v", Version, err)
	}
}
