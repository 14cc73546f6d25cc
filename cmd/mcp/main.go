package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/zwj1kor/Agentic-sso/internal/agent"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := agent.RunMCPStdio(ctx, agent.LoadConfig()); err != nil {
		log.Fatalf("mcp server error: %v", err)
	}
}
