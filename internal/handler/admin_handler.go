/*
Package handler provides HTTP handler functions for inspecting and moderating the running chat
server. Every handler reads state through the chat Hub, so responses are consistent snapshots.
*/
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"relaychat/internal/app/protocol"
	"relaychat/internal/pkg/errs"
	"relaychat/internal/pkg/logx"
	"relaychat/internal/pkg/req"
	"relaychat/internal/pkg/resp"
)

// HandleStats reports connection and channel counters.
func HandleStats(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Server.Hub().Stats()
		if err != nil {
			respondErr(w, r, err)
			return
		}
		resp.RespondSuccess(w, r, stats)
	}
}

// HandleListChannels lists every live channel.
func HandleListChannels(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channels, err := deps.Server.Hub().Channels()
		if err != nil {
			respondErr(w, r, err)
			return
		}
		resp.RespondSuccess(w, r, channels)
	}
}

// HandleGetChannel describes one channel with its members and recent history.
func HandleGetChannel(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		detail, err := deps.Server.Hub().Channel(protocol.ChannelID(id))
		if err != nil {
			respondErr(w, r, err)
			return
		}
		resp.RespondSuccess(w, r, detail)
	}
}

// HandleListUsers lists every connected user.
func HandleListUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := deps.Server.Hub().Users()
		if err != nil {
			respondErr(w, r, err)
			return
		}
		resp.RespondSuccess(w, r, users)
	}
}

// KickInput is the body of a kick request.
type KickInput struct {
	// Reason is shown to the kicked user.
	Reason string `json:"reason" validate:"required,max=200"`
}

// HandleKickUser disconnects a user.
func HandleKickUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		var input KickInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if err := deps.Server.Hub().Kick(protocol.UserID(id), input.Reason); err != nil {
			respondErr(w, r, err)
			return
		}

		logx.Info("User kicked by administrator.", "user_id", id, "reason", input.Reason)
		resp.RespondSuccess(w, r, map[string]any{"kicked": id})
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
		return 0, false
	}
	return uint32(id), true
}

func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	var customErr *errs.CustomError
	if !errors.As(err, &customErr) {
		customErr = errs.Wrap(errs.ErrUnknown, err)
	}
	resp.RespondError(w, r, customErr)
}
