//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"socialdesk/internal/chat"
	"socialdesk/internal/config"
	"socialdesk/internal/feed"
	"socialdesk/internal/friend"
	"socialdesk/internal/httpbridge"
	"socialdesk/internal/notif"
)

// InitializeApp builds the daemon from configuration; wire generates the
// real body in wire_gen.go.
func InitializeApp() (*App, func(), error) {
	wire.Build(
		config.Load,
		ProvideStore,
		ProvideVerifier,
		ProvideManager,
		ProvidePresence,
		notif.NewService,
		wire.Bind(new(chat.Notifier), new(*notif.Service)),
		chat.NewService,
		friend.NewService,
		wire.Bind(new(feed.FriendLister), new(*friend.Service)),
		feed.NewService,
		httpbridge.NewServer,
		wire.Struct(new(App), "Config", "Store", "Manager", "Bridge"),
	)
	return nil, nil, nil
}
