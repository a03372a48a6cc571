package session

import (
	"relaychat/internal/app/protocol"
	"relaychat/internal/app/registry"
	"relaychat/internal/pkg/errs"
)

// apply folds one incoming frame into the replica. It returns the history
// entries it appended and, for an Error control, the error it carried.
func (s *Session) apply(m protocol.Message) ([]protocol.Message, error) {
	if !m.FromServer() {
		return s.applyChat(m), nil
	}

	ctrl, err := m.Control()
	if err != nil {
		s.logger.Debug().Err(err).Msg("Ignoring undecodable control frame.")
		return nil, nil
	}
	if !ctrl.Type.Allows(protocol.ServerToClient) {
		s.logger.Debug().Stringer("type", ctrl.Type).Msg("Ignoring control frame sent in the wrong direction.")
		return nil, nil
	}

	switch ctrl.Type {
	case protocol.TypeUserIDGet:
		s.id = ctrl.UserID
		s.reg.AddUser(s.id, s.name)
		s.logger = s.base.With().Uint32("user_id", uint32(s.id)).Logger()

	case protocol.TypeUserListSync:
		s.applySync(m.Channel, ctrl.UserIDs)

	case protocol.TypeUserJoin:
		return s.applyJoin(m, ctrl), nil

	case protocol.TypeUserLeave:
		return s.applyLeave(m, m.Channel, ctrl), nil

	case protocol.TypeUserLeaveChannel:
		return s.applyLeave(m, ctrl.ChannelID, ctrl), nil

	case protocol.TypeUserNameSend:
		delete(s.requested, ctrl.UserID)
		if ctrl.UserID != s.id && s.reg.HasUser(ctrl.UserID) && ctrl.Text != registry.UnknownName {
			_ = s.reg.SetName(ctrl.UserID, ctrl.Text)
		}

	case protocol.TypeUserNewChannel:
		// members, self included, arrive in server order with the UserListSync that follows
		if _, err := s.reg.AdoptChannel(ctrl.ChannelID, ctrl.Text); err != nil {
			s.logger.Warn().Err(err).Uint32("channel", uint32(ctrl.ChannelID)).Msg("Cannot adopt channel.")
		}

	case protocol.TypeError:
		serverErr := errs.FromWire(int(ctrl.Code), ctrl.Text)
		s.lastErr = serverErr
		s.logger.Warn().Int("code", serverErr.Code).Str("message", serverErr.Message).Msg("Server reported an error.")
		return nil, serverErr
	}

	return nil, nil
}

func (s *Session) applyChat(m protocol.Message) []protocol.Message {
	if !s.reg.HasChannel(m.Channel) {
		s.logger.Debug().Uint32("channel", uint32(m.Channel)).Msg("Chat for a channel missing from the replica.")
		return nil
	}

	s.learnUser(m.Sender)
	_ = s.reg.RecordHistory(m.Channel, m)

	return []protocol.Message{m}
}

// applySync merges member IDs into a channel. A sync only ever adds members;
// departures arrive as leave notifications.
func (s *Session) applySync(cid protocol.ChannelID, ids []protocol.UserID) {
	if !s.reg.HasChannel(cid) {
		return
	}

	for _, uid := range ids {
		s.learnUser(uid)
		if _, err := s.reg.AddMember(cid, uid); err != nil {
			s.logger.Warn().Err(err).Uint32("channel", uint32(cid)).Msg("Cannot merge member.")
		}
	}
}

func (s *Session) applyJoin(m protocol.Message, ctrl protocol.Control) []protocol.Message {
	cid := m.Channel
	if !s.reg.HasChannel(cid) {
		return nil
	}

	s.reg.AddUser(ctrl.UserID, ctrl.Text)
	delete(s.requested, ctrl.UserID)
	if _, err := s.reg.AddMember(cid, ctrl.UserID); err != nil {
		s.logger.Warn().Err(err).Uint32("channel", uint32(cid)).Msg("Cannot add joining member.")
	}

	return s.note(cid, m.Timestamp, s.reg.LookupName(ctrl.UserID)+" Joined")
}

func (s *Session) applyLeave(m protocol.Message, cid protocol.ChannelID, ctrl protocol.Control) []protocol.Message {
	if !s.reg.HasChannel(cid) {
		return nil
	}

	name := ctrl.Text
	if name == "" {
		name = s.reg.LookupName(ctrl.UserID)
	}

	s.reg.RemoveMember(cid, ctrl.UserID)
	s.forgetIfOrphaned(ctrl.UserID)

	return s.note(cid, m.Timestamp, name+" Left")
}

// note appends a synthetic server entry to a channel's history.
func (s *Session) note(cid protocol.ChannelID, timestamp uint64, text string) []protocol.Message {
	if timestamp == 0 {
		timestamp = protocol.UnixSeconds(s.now())
	}

	entry := protocol.Message{Sender: protocol.ServerUserID, Channel: cid, Timestamp: timestamp}
	entry.SetContent([]byte(text))

	if err := s.reg.RecordHistory(cid, entry); err != nil {
		return nil
	}
	return []protocol.Message{entry}
}

// learnUser registers an ID seen for the first time and asks for its name once.
func (s *Session) learnUser(uid protocol.UserID) {
	if uid == protocol.ServerUserID || uid == s.id || s.reg.HasUser(uid) {
		return
	}

	s.reg.AddUser(uid, "")
	if _, pending := s.requested[uid]; !pending {
		_ = s.RequestUserName(uid)
	}
}

// forgetIfOrphaned drops a user that no longer shares any channel with us.
func (s *Session) forgetIfOrphaned(uid protocol.UserID) {
	if uid == s.id || !s.reg.HasUser(uid) {
		return
	}
	if len(s.reg.UserChannels(uid)) == 0 {
		s.reg.RemoveUser(uid)
		delete(s.requested, uid)
	}
}

// ID returns the server-assigned user ID, or 0 before the handshake.
func (s *Session) ID() protocol.UserID {
	return s.id
}

// Name returns the display name last set with SendUsername or Options.
func (s *Session) Name() string {
	return s.name
}

// Connected reports whether the session believes its connection is alive.
func (s *Session) Connected() bool {
	return s.connected
}

// LastError returns the most recent connection, send or server-reported error.
func (s *Session) LastError() error {
	return s.lastErr
}

// Channels returns the IDs of the channels in the replica, global first.
func (s *Session) Channels() []protocol.ChannelID {
	return s.reg.ChannelIDs()
}

// ChannelName returns a channel's name.
func (s *Session) ChannelName(cid protocol.ChannelID) (string, bool) {
	return s.reg.ChannelName(cid)
}

// Members returns a channel's member IDs in join order.
func (s *Session) Members(cid protocol.ChannelID) []protocol.UserID {
	return s.reg.Members(cid)
}

// History returns a channel's recorded entries, oldest first.
func (s *Session) History(cid protocol.ChannelID) []protocol.Message {
	return s.reg.History(cid)
}

// UserName returns a user's name, or "unknown".
func (s *Session) UserName(uid protocol.UserID) string {
	if uid == s.id && s.name != "" {
		return s.name
	}
	return s.reg.LookupName(uid)
}
