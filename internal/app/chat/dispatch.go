package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"relaychat/internal/app/protocol"
	"relaychat/internal/app/user"
	"relaychat/internal/pkg/errs"
)

// dispatch routes one inbound frame. Failures are reported to the sender as
// an Error control and never close the connection.
func (h *Hub) dispatch(c *Client, msg protocol.Message) {
	if current, ok := h.clients[c.id]; !ok || current != c {
		return
	}

	var err error
	if msg.Channel == protocol.ChannelServer {
		err = h.handleControl(c, msg)
	} else {
		err = h.handleChat(c, msg)
	}

	if err != nil {
		c.logger.Debug().Err(err).Uint32("channel", uint32(msg.Channel)).Msg("Request rejected.")
		h.deliver(c, errorMessage(err, h.now()))
	}
}

func (h *Hub) handleControl(c *Client, msg protocol.Message) error {
	ctrl, err := msg.Control()
	if err != nil {
		return err
	}

	if !ctrl.Type.Allows(protocol.ClientToServer) {
		return errs.NewError(errs.ErrUnexpectedDirection, ctrl.Type.String())
	}

	switch ctrl.Type {
	case protocol.TypePing:
		// the read deadline was already refreshed by readPump
		return nil

	case protocol.TypeUserNameSet:
		return h.handleSetName(c, ctrl.Text)

	case protocol.TypeUserListSync:
		for _, cid := range h.registry.UserChannels(c.id) {
			h.sendSync(c, cid)
		}
		return nil

	case protocol.TypeUserNameRequest:
		h.deliverControl(c, protocol.ChannelServer, protocol.Control{
			Type:   protocol.TypeUserNameSend,
			UserID: ctrl.UserID,
			Text:   h.registry.LookupName(ctrl.UserID),
		})
		return nil

	case protocol.TypeCreateChannel:
		return h.handleCreateChannel(c, ctrl.UserID, ctrl.Text)

	case protocol.TypeUserInvite:
		return h.handleInvite(c, ctrl.ChannelID, ctrl.UserID)

	case protocol.TypeUserLeaveChannel:
		return h.handleLeaveChannel(c, ctrl.ChannelID)

	default:
		return errs.NewError(errs.ErrUnknownControlType, uint32(ctrl.Type))
	}
}

// handleSetName stores the name. The first name announces the user to the
// global channel; later renames go to everyone sharing a channel.
func (h *Hub) handleSetName(c *Client, raw string) error {
	name, err := user.CleanName(raw)
	if err != nil {
		return err
	}

	if err := h.registry.SetName(c.id, name); err != nil {
		return err
	}

	if !c.named {
		c.named = true
		h.broadcastControl(protocol.ChannelGlobal, c.id, protocol.Control{
			Type:   protocol.TypeUserJoin,
			UserID: c.id,
			Text:   name,
		})
		c.logger.Info().Str("name", name).Msg("User joined.")
		return nil
	}

	rename := protocol.NewControlMessage(protocol.ChannelServer, protocol.Control{
		Type:   protocol.TypeUserNameSend,
		UserID: c.id,
		Text:   name,
	}, h.now())
	for _, uid := range h.registry.Peers(c.id) {
		if peer, ok := h.clients[uid]; ok {
			h.deliver(peer, rename)
		}
	}
	c.logger.Info().Str("name", name).Msg("User renamed.")

	return nil
}

func (h *Hub) handleCreateChannel(c *Client, invitee protocol.UserID, name string) error {
	if invitee == c.id {
		invitee = 0
	}
	if invitee != 0 && !h.registry.HasUser(invitee) {
		return errs.NewError(errs.ErrUserNotFound, uint32(invitee))
	}

	name = strings.TrimSpace(name)
	if name == "" {
		requester := h.registry.LookupName(c.id)
		if invitee != 0 {
			name = fmt.Sprintf("%s & %s", requester, h.registry.LookupName(invitee))
		} else {
			name = requester + "'s channel"
		}
	}

	cid, err := h.registry.CreateChannel(name)
	if err != nil {
		return err
	}
	if _, err := h.registry.AddMember(cid, c.id); err != nil {
		h.registry.DestroyChannel(cid)
		return err
	}

	c.logger.Info().Uint32("channel", uint32(cid)).Str("channel_name", name).Msg("Channel created.")
	h.announceChannel(c, cid)

	if invitee != 0 {
		return h.invite(cid, invitee)
	}
	return nil
}

func (h *Hub) handleInvite(c *Client, cid protocol.ChannelID, invitee protocol.UserID) error {
	if cid == protocol.ChannelGlobal {
		return errs.NewError(errs.ErrGlobalChannel)
	}
	if !h.registry.HasChannel(cid) {
		return errs.NewError(errs.ErrChannelNotFound, uint32(cid))
	}
	if !h.registry.IsMember(cid, c.id) {
		return errs.NewError(errs.ErrNotMember, uint32(cid))
	}
	if !h.registry.HasUser(invitee) {
		return errs.NewError(errs.ErrUserNotFound, uint32(invitee))
	}

	return h.invite(cid, invitee)
}

// invite adds the user to the channel. A new member receives the channel and
// its member list; the existing members receive a UserJoin.
func (h *Hub) invite(cid protocol.ChannelID, invitee protocol.UserID) error {
	added, err := h.registry.AddMember(cid, invitee)
	if err != nil || !added {
		return err
	}

	if target, ok := h.clients[invitee]; ok {
		h.announceChannel(target, cid)
	}

	h.broadcastControl(cid, invitee, protocol.Control{
		Type:   protocol.TypeUserJoin,
		UserID: invitee,
		Text:   h.registry.LookupName(invitee),
	})

	return nil
}

func (h *Hub) handleLeaveChannel(c *Client, cid protocol.ChannelID) error {
	if cid == protocol.ChannelGlobal {
		return errs.NewError(errs.ErrGlobalChannel)
	}
	if !h.registry.HasChannel(cid) {
		return errs.NewError(errs.ErrChannelNotFound, uint32(cid))
	}

	removed, destroyed := h.registry.RemoveMember(cid, c.id)
	if !removed {
		return errs.NewError(errs.ErrNotMember, uint32(cid))
	}

	c.logger.Info().Uint32("channel", uint32(cid)).Bool("destroyed", destroyed).Msg("User left channel.")

	if !destroyed {
		h.broadcastControl(cid, c.id, protocol.Control{
			Type:      protocol.TypeUserLeaveChannel,
			ChannelID: cid,
			UserID:    c.id,
			Text:      h.registry.LookupName(c.id),
		})
	}
	return nil
}

// handleChat stamps the sender, records the frame and fans it out to every
// other member of the channel.
func (h *Hub) handleChat(c *Client, msg protocol.Message) error {
	cid := msg.Channel

	if !h.registry.HasChannel(cid) {
		return errs.NewError(errs.ErrChannelNotFound, uint32(cid))
	}
	if !h.registry.IsMember(cid, c.id) {
		return errs.NewError(errs.ErrNotMember, uint32(cid))
	}

	msg.Sender = c.id
	if msg.Timestamp == 0 {
		msg.Timestamp = protocol.UnixSeconds(h.now())
	}

	if err := h.registry.RecordHistory(cid, msg); err != nil {
		return err
	}
	h.broadcast(cid, c.id, msg)

	return nil
}

// announceChannel sends a channel's name and member list to one client.
func (h *Hub) announceChannel(c *Client, cid protocol.ChannelID) {
	name, _ := h.registry.ChannelName(cid)
	h.deliverControl(c, cid, protocol.Control{
		Type:      protocol.TypeUserNewChannel,
		ChannelID: cid,
		Text:      name,
	})
	h.sendSync(c, cid)
}

// errorMessage builds the Error control frame reporting err to a peer.
func errorMessage(err error, at time.Time) protocol.Message {
	var customErr *errs.CustomError
	if !errors.As(err, &customErr) {
		customErr = errs.Wrap(errs.ErrUnknown, err)
	}

	return protocol.NewControlMessage(protocol.ChannelServer, protocol.Control{
		Type: protocol.TypeError,
		Code: uint32(customErr.Code),
		Text: customErr.Message,
	}, at)
}
