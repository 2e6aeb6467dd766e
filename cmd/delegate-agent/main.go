package main

import (
	"log"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application"
	_ "github.com/grand-thief-cash/chaos/app/projects/delegate/internal/agent"
	_ "github.com/grand-thief-cash/chaos/app/projects/delegate/internal/config"
)

var (
	Version = "v0.1.0"
)

// 参考 delegate：CONFIG_PATH 指向 config/agent.yaml
func main() {
	app := application.GetApp()

	if err := app.Run(); err != nil {
		log.Fatalf("delegate agent %s exited with error: %v", Version, err)
	}
}
