package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/keshon/server-miyabi/internal/app"
	"github.com/keshon/server-miyabi/internal/config"
	"github.com/keshon/server-miyabi/internal/discord"
)

func main() {
	log.Printf("[INFO] Starting %v bot...", app.AppName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config.LoadDotEnv()
	cfg, err := config.New()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.DiscordToken == "" {
		log.Fatal("DISCORD_TOKEN is not set")
	}

	a, err := app.New(cfg, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Println("[ERR] Close:", err)
		}
	}()
	a.Start()

	errCh := make(chan error, 1)
	go func() {
		if err := discord.StartBot(ctx, cfg.DiscordToken, a.Handler); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Printf("[INFO] Received signal %s, shutting down...\n", s)
		cancel()
	case err := <-errCh:
		if err != nil {
			log.Println("[ERR] Discord bot error:", err)
		}
		cancel()
	}
	<-errCh

	log.Println("[INFO] Discord bot exited cleanly")
}
