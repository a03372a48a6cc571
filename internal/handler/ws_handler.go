/*
Package handler provides the HTTP handler function for WebSocket connection upgrading.

This file contains the HandleWebSocket function, which applies connection admission, upgrades
the HTTP connection to WebSocket and hands it to the chat server, which serves it exactly like
a raw TCP connection.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"relaychat/internal/app/transport"
	"relaychat/internal/pkg/logx"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
func HandleWebSocket(upgrader websocket.Upgrader, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Server.Admit(r.RemoteAddr); err != nil {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", logx.AnonymizeIP(r.RemoteAddr))
			respondErr(w, r, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		logx.Debug("WebSocket connection established.", "ip", logx.AnonymizeIP(r.RemoteAddr))

		// ServeConn blocks until the connection closes and reports its own errors.
		_ = deps.Server.ServeConn(transport.NewWebSocketConn(conn))
	}
}

