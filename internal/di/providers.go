// Package di assembles the daemon: configuration, the selected docstore
// backend, the notification pipeline, the domain services and the bridge.
package di

import (
	"context"
	"fmt"
	"log"
	"time"

	"socialdesk/internal/auth"
	"socialdesk/internal/config"
	"socialdesk/internal/docstore"
	"socialdesk/internal/docstore/gormstore"
	"socialdesk/internal/docstore/memstore"
	"socialdesk/internal/docstore/mongostore"
	"socialdesk/internal/httpbridge"
	"socialdesk/internal/notif"
	"socialdesk/internal/presence"
)

// App holds the wired daemon. The Manager is exposed so an embedding shell
// can register its own observers next to the bridge's toast streams.
type App struct {
	Config  *config.Config
	Store   docstore.Store
	Manager *notif.Manager
	Bridge  *httpbridge.Server
}

// ProvideStore opens the backend named in the configuration. The memory
// backend needs no external service and is the development default.
func ProvideStore(cfg *config.Config) (docstore.Store, func(), error) {
	switch cfg.Store.Backend {
	case "memory":
		return memstore.New(), func() {}, nil

	case "mysql":
		store, err := gormstore.New(cfg)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := store.Close(); err != nil {
				log.Printf("di: closing mysql store: %v", err)
			}
		}
		return store, cleanup, nil

	case "mongo":
		store, err := mongostore.New(context.Background(), cfg)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Close(ctx); err != nil {
				log.Printf("di: closing mongo store: %v", err)
			}
		}
		return store, cleanup, nil

	default:
		return nil, nil, fmt.Errorf("di: unknown store backend %q", cfg.Store.Backend)
	}
}

func ProvideVerifier(cfg *config.Config) *auth.Verifier {
	return auth.NewVerifier([]byte(cfg.Auth.JWTSecret))
}

func ProvideManager(cfg *config.Config) (*notif.Manager, func()) {
	manager := notif.NewManager(cfg.Notification.Workers, cfg.Notification.ChannelBufferSize)
	return manager, manager.Shutdown
}

// ProvidePresence wires presence over the in-process KV; the bridge owns
// connection lifetimes, so no hosted realtime service is needed here.
func ProvidePresence(store docstore.Store) *presence.Service {
	return presence.NewService(presence.NewMemoryKV(), store, time.Minute)
}
