package handler

import (
	"relaychat/internal/app/chat"
	"relaychat/internal/configs"
)

// AppDeps bundles what the admin handlers need.
type AppDeps struct {
	Server *chat.Server
	Config *configs.AppConfig
}
