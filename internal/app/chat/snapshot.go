package chat

import (
	"time"

	"relaychat/internal/app/protocol"
	"relaychat/internal/app/user"
	"relaychat/internal/pkg/errs"
)

// historyPreview is the number of most recent history entries in a ChannelDetail.
const historyPreview = 20

// Stats is a point-in-time summary of the hub.
type Stats struct {
	Users         int            `json:"users"`
	Channels      int            `json:"channels"`
	Transports    map[string]int `json:"transports"`
	UptimeSeconds int64          `json:"uptime_seconds"`
}

// ChannelSummary describes one live channel.
type ChannelSummary struct {
	ID      protocol.ChannelID `json:"id"`
	Name    string             `json:"name"`
	Members int                `json:"members"`
	History int                `json:"history"`
}

// HistoryEntry is one recorded chat line.
type HistoryEntry struct {
	Sender     protocol.UserID `json:"sender"`
	SenderName string          `json:"sender_name"`
	Timestamp  time.Time       `json:"timestamp"`
	Text       string          `json:"text"`
}

// ChannelDetail describes one channel with its members and recent history.
type ChannelDetail struct {
	ChannelSummary
	MemberList []user.User     `json:"member_list"`
	Recent     []HistoryEntry `json:"recent"`
}

// Stats returns the hub's counters.
func (h *Hub) Stats() (Stats, error) {
	var s Stats

	err := h.do(func() {
		s = Stats{
			Users:         h.registry.UserCount(),
			Channels:      h.registry.ChannelCount(),
			Transports:    make(map[string]int),
			UptimeSeconds: int64(h.now().Sub(h.startedAt).Seconds()),
		}
		for _, c := range h.clients {
			s.Transports[c.conn.Kind()]++
		}
	})

	return s, err
}

// Channels lists every live channel in ID order.
func (h *Hub) Channels() ([]ChannelSummary, error) {
	var list []ChannelSummary

	err := h.do(func() {
		ids := h.registry.ChannelIDs()
		list = make([]ChannelSummary, 0, len(ids))
		for _, cid := range ids {
			list = append(list, h.summary(cid))
		}
	})

	return list, err
}

// Channel describes a single channel, or fails with ErrChannelNotFound.
func (h *Hub) Channel(cid protocol.ChannelID) (ChannelDetail, error) {
	var (
		detail ChannelDetail
		found  bool
	)

	err := h.do(func() {
		if !h.registry.HasChannel(cid) {
			return
		}
		found = true

		detail.ChannelSummary = h.summary(cid)

		members := h.registry.Members(cid)
		detail.MemberList = make([]user.User, 0, len(members))
		for _, uid := range members {
			u := user.User{ID: uid, Nickname: h.registry.LookupName(uid)}
			if c, ok := h.clients[uid]; ok {
				u.Transport = c.conn.Kind()
			}
			detail.MemberList = append(detail.MemberList, u)
		}

		history := h.registry.History(cid)
		if len(history) > historyPreview {
			history = history[len(history)-historyPreview:]
		}
		detail.Recent = make([]HistoryEntry, 0, len(history))
		for _, m := range history {
			detail.Recent = append(detail.Recent, HistoryEntry{
				Sender:     m.Sender,
				SenderName: h.registry.LookupName(m.Sender),
				Timestamp:  m.Time(),
				Text:       m.Text(),
			})
		}
	})
	if err != nil {
		return ChannelDetail{}, err
	}
	if !found {
		return ChannelDetail{}, errs.NewError(errs.ErrChannelNotFound, uint32(cid))
	}

	return detail, nil
}

func (h *Hub) summary(cid protocol.ChannelID) ChannelSummary {
	name, _ := h.registry.ChannelName(cid)
	return ChannelSummary{
		ID:      cid,
		Name:    name,
		Members: len(h.registry.Members(cid)),
		History: h.registry.HistoryLen(cid),
	}
}

// Users lists every connected user in ID order.
func (h *Hub) Users() ([]user.User, error) {
	var list []user.User

	err := h.do(func() {
		ids := h.registry.UserIDs()
		list = make([]user.User, 0, len(ids))
		for _, uid := range ids {
			u := user.User{ID: uid, Nickname: h.registry.LookupName(uid)}
			if c, ok := h.clients[uid]; ok {
				u.Transport = c.conn.Kind()
			}
			list = append(list, u)
		}
	})

	return list, err
}

// Kick disconnects a user after telling it why. Its channel-mates see an
// ordinary leave.
func (h *Hub) Kick(uid protocol.UserID, reason string) error {
	var found bool

	err := h.do(func() {
		c, ok := h.clients[uid]
		if !ok {
			return
		}
		found = true

		h.deliver(c, errorMessage(errs.NewError(errs.ErrKicked, reason), h.now()))
		h.removeClient(c, "kicked")
	})
	if err != nil {
		return err
	}
	if !found {
		return errs.NewError(errs.ErrUserNotFound, uint32(uid))
	}

	return nil
}
