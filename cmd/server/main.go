package main

import (
	"context"
	"fmt"
	"log"

	"docbroker/internal/auth"
	"docbroker/internal/config"
	"docbroker/internal/editor"
	"docbroker/internal/events"
	"docbroker/internal/hub"
	"docbroker/internal/registry"
	"docbroker/internal/server"
	"docbroker/internal/storage"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	gin.SetMode(cfg.GinMode)

	store, err := storage.Open(context.Background(), cfg.DocumentsDBFile)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	tokenCfg := auth.TokenConfig{
		Secret: cfg.MasterSecret,
		Expiry: cfg.TokenExpiry,
		Issuer: "docbroker",
	}

	dispatcher := events.NewDispatcher()
	wsHub := hub.New()
	dispatcher.Subscribe(hub.NewBridge(wsHub))

	svc := editor.New(registry.New(), store, dispatcher, editor.TokenIdentities{}, tokenCfg, editor.Params{
		DocserverURL:        cfg.DocserverURL(),
		PlatformURL:         cfg.PlatformURL(),
		DocserverHostName:   cfg.DocserverHostName(),
		DocserverAccessOnly: cfg.DocserverAccessOnly,
		LockAttempts:        cfg.LockAttempts,
		LockInterval:        cfg.LockInterval,
	})
	defer svc.Stop()

	router := server.NewRouter(server.Deps{Service: svc, Hub: wsHub, TokenConfig: tokenCfg})
	log.Printf("listening on %s", fmt.Sprintf(":%d", cfg.Port))
	log.Fatal(server.Run(cfg, router))
}
