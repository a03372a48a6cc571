/*
Package registry is the in-memory store of channels, their membership and history, and the
users that belong to them.

A Registry is not safe for concurrent use. On the server it is owned by the chat hub
goroutine; on the client it is owned by the session, which is driven from a single caller.
Every mutation goes through the methods below so that a user listed in a channel always has
that channel in its own membership set, and the other way around.
*/
package registry

import (
	"fmt"
	"slices"

	"relaychat/internal/app/protocol"
	"relaychat/internal/pkg/errs"
)

const (
	// GlobalChannelName is the display name of protocol.ChannelGlobal.
	GlobalChannelName = "Global"

	// UnknownName is returned for users without a known name.
	UnknownName = "unknown"
)

// Limits bounds the registry's containers.
type Limits struct {
	// MaxChannels caps live channels, global included.
	MaxChannels int

	// MaxMembers caps members per channel; joins beyond it are rejected.
	MaxMembers int

	// MaxHistory caps history per channel; the oldest entry is dropped beyond it.
	MaxHistory int
}

// DefaultLimits returns the capacities of the reference deployment.
func DefaultLimits() Limits {
	return Limits{
		MaxChannels: 1000,
		MaxMembers:  1000,
		MaxHistory:  100,
	}
}

// Channel is a named group with an ordered member set and bounded history.
type Channel struct {
	ID      protocol.ChannelID
	Name    string
	members []protocol.UserID
	index   map[protocol.UserID]struct{}
	history *ring
}

// User is a registered user and the channels it belongs to.
type User struct {
	ID       protocol.UserID
	Name     string
	channels map[protocol.ChannelID]struct{}
}

// Registry stores channels and users.
type Registry struct {
	limits   Limits
	channels map[protocol.ChannelID]*Channel
	users    map[protocol.UserID]*User
	next     protocol.ChannelID
}

// New returns a registry holding only the global channel.
func New(limits Limits) *Registry {
	def := DefaultLimits()
	if limits.MaxChannels < 1 {
		limits.MaxChannels = def.MaxChannels
	}
	if limits.MaxMembers < 1 {
		limits.MaxMembers = def.MaxMembers
	}
	if limits.MaxHistory < 1 {
		limits.MaxHistory = def.MaxHistory
	}

	r := &Registry{
		limits:   limits,
		channels: make(map[protocol.ChannelID]*Channel),
		users:    make(map[protocol.UserID]*User),
		next:     protocol.FirstUserChannel,
	}
	r.channels[protocol.ChannelGlobal] = r.newChannel(protocol.ChannelGlobal, GlobalChannelName)

	return r
}

func (r *Registry) newChannel(id protocol.ChannelID, name string) *Channel {
	return &Channel{
		ID:      id,
		Name:    name,
		index:   make(map[protocol.UserID]struct{}),
		history: newRing(r.limits.MaxHistory),
	}
}

// Limits returns the registry's capacities.
func (r *Registry) Limits() Limits {
	return r.limits
}

// CreateChannel allocates a fresh channel ID (never below protocol.FirstUserChannel).
func (r *Registry) CreateChannel(name string) (protocol.ChannelID, error) {
	if len(r.channels) >= r.limits.MaxChannels {
		return 0, errs.NewError(errs.ErrChannelLimit)
	}

	for {
		id := r.next
		r.next++
		if r.next < protocol.FirstUserChannel {
			r.next = protocol.FirstUserChannel
		}
		if _, taken := r.channels[id]; !taken {
			r.channels[id] = r.newChannel(id, name)
			return id, nil
		}
	}
}

// AdoptChannel registers a channel whose ID was assigned elsewhere, as the
// client replica does for channels announced by the server. It returns false
// if the channel already existed; the name is updated either way.
func (r *Registry) AdoptChannel(id protocol.ChannelID, name string) (bool, error) {
	if ch, ok := r.channels[id]; ok {
		if name != "" {
			ch.Name = name
		}
		return false, nil
	}
	if id == protocol.ChannelServer {
		return false, errs.NewError(errs.ErrInvalidParams)
	}
	if len(r.channels) >= r.limits.MaxChannels {
		return false, errs.NewError(errs.ErrChannelLimit)
	}
	r.channels[id] = r.newChannel(id, name)
	return true, nil
}

// DestroyChannel removes a non-global channel and every membership pointing at it.
func (r *Registry) DestroyChannel(id protocol.ChannelID) bool {
	ch, ok := r.channels[id]
	if !ok || id == protocol.ChannelGlobal {
		return false
	}
	for _, uid := range ch.members {
		if u, ok := r.users[uid]; ok {
			delete(u.channels, id)
		}
	}
	delete(r.channels, id)
	return true
}

// AddUser registers a user. Registering an existing ID keeps its memberships
// and only updates a non-empty name.
func (r *Registry) AddUser(id protocol.UserID, name string) *User {
	if u, ok := r.users[id]; ok {
		if name != "" {
			u.Name = name
		}
		return u
	}
	u := &User{
		ID:       id,
		Name:     name,
		channels: make(map[protocol.ChannelID]struct{}),
	}
	r.users[id] = u
	return u
}

// RemoveUser removes a user from every channel and forgets it. It returns the
// channels the user was in, in ascending order, including destroyed ones.
func (r *Registry) RemoveUser(id protocol.UserID) []protocol.ChannelID {
	u, ok := r.users[id]
	if !ok {
		return nil
	}

	left := r.UserChannels(id)
	for _, cid := range left {
		r.RemoveMember(cid, id)
	}
	delete(r.users, u.ID)

	return left
}

// HasUser reports whether id is registered.
func (r *Registry) HasUser(id protocol.UserID) bool {
	_, ok := r.users[id]
	return ok
}

// SetName sets a registered user's name.
func (r *Registry) SetName(id protocol.UserID, name string) error {
	u, ok := r.users[id]
	if !ok {
		return errs.NewError(errs.ErrUserNotFound, id)
	}
	u.Name = name
	return nil
}

// LookupName returns the user's name, or UnknownName.
func (r *Registry) LookupName(id protocol.UserID) string {
	if u, ok := r.users[id]; ok && u.Name != "" {
		return u.Name
	}
	return UnknownName
}

// AddMember adds the user to the channel. It is idempotent and reports whether
// the membership is new. A full channel rejects new members.
func (r *Registry) AddMember(cid protocol.ChannelID, uid protocol.UserID) (bool, error) {
	ch, ok := r.channels[cid]
	if !ok {
		return false, errs.NewError(errs.ErrChannelNotFound, cid)
	}
	u, ok := r.users[uid]
	if !ok {
		return false, errs.NewError(errs.ErrUserNotFound, uid)
	}
	if _, member := ch.index[uid]; member {
		return false, nil
	}
	if len(ch.members) >= r.limits.MaxMembers {
		return false, errs.NewError(errs.ErrChannelFull, cid)
	}

	ch.members = append(ch.members, uid)
	ch.index[uid] = struct{}{}
	u.channels[cid] = struct{}{}

	return true, nil
}

// RemoveMember removes the user from the channel, keeping the order of the
// remaining members. It reports whether the user was a member and whether the
// channel was destroyed because it became empty. The global channel is never
// destroyed.
func (r *Registry) RemoveMember(cid protocol.ChannelID, uid protocol.UserID) (removed, destroyed bool) {
	ch, ok := r.channels[cid]
	if !ok {
		return false, false
	}
	if _, member := ch.index[uid]; !member {
		return false, false
	}

	ch.members = slices.DeleteFunc(ch.members, func(id protocol.UserID) bool { return id == uid })
	delete(ch.index, uid)
	if u, ok := r.users[uid]; ok {
		delete(u.channels, cid)
	}

	if len(ch.members) == 0 && cid != protocol.ChannelGlobal {
		delete(r.channels, cid)
		return true, true
	}
	return true, false
}

// ClearMembers empties a channel's member set without destroying it.
func (r *Registry) ClearMembers(cid protocol.ChannelID) {
	ch, ok := r.channels[cid]
	if !ok {
		return
	}
	for _, uid := range ch.members {
		if u, ok := r.users[uid]; ok {
			delete(u.channels, cid)
		}
	}
	ch.members = nil
	clear(ch.index)
}

// IsMember reports whether the user is in the channel.
func (r *Registry) IsMember(cid protocol.ChannelID, uid protocol.UserID) bool {
	ch, ok := r.channels[cid]
	if !ok {
		return false
	}
	_, member := ch.index[uid]
	return member
}

// RecordHistory appends msg to the channel's history, dropping the oldest
// entry when full.
func (r *Registry) RecordHistory(cid protocol.ChannelID, msg protocol.Message) error {
	ch, ok := r.channels[cid]
	if !ok {
		return errs.NewError(errs.ErrChannelNotFound, cid)
	}
	ch.history.push(msg)
	return nil
}

// History returns a copy of the channel's history, oldest first.
func (r *Registry) History(cid protocol.ChannelID) []protocol.Message {
	ch, ok := r.channels[cid]
	if !ok {
		return nil
	}
	return ch.history.items()
}

// Members returns a copy of the channel's members in join order.
func (r *Registry) Members(cid protocol.ChannelID) []protocol.UserID {
	ch, ok := r.channels[cid]
	if !ok {
		return nil
	}
	return slices.Clone(ch.members)
}

// HasChannel reports whether the channel exists.
func (r *Registry) HasChannel(cid protocol.ChannelID) bool {
	_, ok := r.channels[cid]
	return ok
}

// ChannelName returns the channel's name.
func (r *Registry) ChannelName(cid protocol.ChannelID) (string, bool) {
	ch, ok := r.channels[cid]
	if !ok {
		return "", false
	}
	return ch.Name, true
}

// ChannelIDs returns every live channel ID in ascending order.
func (r *Registry) ChannelIDs() []protocol.ChannelID {
	ids := make([]protocol.ChannelID, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// UserChannels returns the user's channels in ascending order.
func (r *Registry) UserChannels(uid protocol.UserID) []protocol.ChannelID {
	u, ok := r.users[uid]
	if !ok {
		return nil
	}
	ids := make([]protocol.ChannelID, 0, len(u.channels))
	for id := range u.channels {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// UserIDs returns every registered user in ascending order.
func (r *Registry) UserIDs() []protocol.UserID {
	ids := make([]protocol.UserID, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Peers returns every user sharing at least one channel with uid, excluding uid.
func (r *Registry) Peers(uid protocol.UserID) []protocol.UserID {
	seen := make(map[protocol.UserID]struct{})
	for _, cid := range r.UserChannels(uid) {
		for _, member := range r.channels[cid].members {
			if member != uid {
				seen[member] = struct{}{}
			}
		}
	}
	peers := make([]protocol.UserID, 0, len(seen))
	for id := range seen {
		peers = append(peers, id)
	}
	slices.Sort(peers)
	return peers
}

// ChannelCount returns the number of live channels.
func (r *Registry) ChannelCount() int {
	return len(r.channels)
}

// UserCount returns the number of registered users.
func (r *Registry) UserCount() int {
	return len(r.users)
}

// HistoryLen returns the number of stored history entries of the channel.
func (r *Registry) HistoryLen(cid protocol.ChannelID) int {
	ch, ok := r.channels[cid]
	if !ok {
		return 0
	}
	return ch.history.len()
}

// Verify checks that channel member lists and user membership sets mirror
// each other. It returns the first inconsistency found.
func (r *Registry) Verify() error {
	for cid, ch := range r.channels {
		if len(ch.members) != len(ch.index) {
			return fmt.Errorf("channel %d: %d members but %d index entries", cid, len(ch.members), len(ch.index))
		}
		for _, uid := range ch.members {
			u, ok := r.users[uid]
			if !ok {
				return fmt.Errorf("channel %d lists unregistered user %d", cid, uid)
			}
			if _, ok := u.channels[cid]; !ok {
				return fmt.Errorf("channel %d lists user %d, whose memberships lack it", cid, uid)
			}
		}
	}
	for uid, u := range r.users {
		for cid := range u.channels {
			ch, ok := r.channels[cid]
			if !ok {
				return fmt.Errorf("user %d is a member of missing channel %d", uid, cid)
			}
			if _, ok := ch.index[uid]; !ok {
				return fmt.Errorf("user %d lists channel %d, which does not list the user", uid, cid)
			}
		}
	}
	if _, ok := r.channels[protocol.ChannelGlobal]; !ok {
		return fmt.Errorf("global channel missing")
	}
	return nil
}
