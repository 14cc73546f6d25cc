package main

import (
	"log"

	"github.com/zwj1kor/Agentic-sso/internal/agent"
)

func main() {
	application, err := agent.NewApplication(agent.LoadConfig())
	if err != nil {
		log.Fatalf("failed to initialize agent: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("agent error: %v", err)
	}
}
