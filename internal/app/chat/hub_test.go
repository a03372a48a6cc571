package chat

import (
	"slices"
	"testing"
	"time"

	"relaychat/internal/app/protocol"
	"relaychat/internal/pkg/errs"
)

func TestHandshake(t *testing.T) {
	s := newTestServer(t, testConfig())

	a := &testPeer{conn: newFakeConn(64), done: make(chan error, 1)}
	go func() { a.done <- s.ServeConn(a.conn) }()

	if want, got := protocol.UserID(1), a.expectControl(t, protocol.TypeUserIDGet).UserID; want != got {
		t.Fatalf("expected first user ID %d but got %d", want, got)
	}
	assertIDs(t, []protocol.UserID{1}, a.expectControl(t, protocol.TypeUserListSync).UserIDs)

	b := &testPeer{conn: newFakeConn(64), done: make(chan error, 1)}
	go func() { b.done <- s.ServeConn(b.conn) }()

	if want, got := protocol.UserID(2), b.expectControl(t, protocol.TypeUserIDGet).UserID; want != got {
		t.Fatalf("expected second user ID %d but got %d", want, got)
	}
	sync := b.next(t)
	if sync.Channel != protocol.ChannelGlobal {
		t.Errorf("expected the sync on channel %d, got %d", protocol.ChannelGlobal, sync.Channel)
	}
	ctrl, _ := sync.Control()
	assertIDs(t, []protocol.UserID{1, 2}, ctrl.UserIDs)

	// unnamed users are not announced
	a.expectQuiet(t)
}

func TestNameAnnouncedOnceThenRenamed(t *testing.T) {
	s := newTestServer(t, testConfig())
	a, b := connect(t, s), connect(t, s)

	a.setName(t, "Alice", b)
	b.setName(t, "Bob", a)

	b.sendControl(protocol.Control{Type: protocol.TypeUserNameSet, Text: "  Robert  "})

	ctrl := a.expectControl(t, protocol.TypeUserNameSend)
	if ctrl.UserID != b.id || ctrl.Text != "Robert" {
		t.Errorf("expected rename of %d to Robert, got %+v", b.id, ctrl)
	}
	b.expectQuiet(t)

	b.sendControl(protocol.Control{Type: protocol.TypeUserNameSet, Text: "\x01"})
	b.expectError(t, errs.ErrInvalidUsername)
}

func TestFanOutCompleteness(t *testing.T) {
	s := newTestServer(t, testConfig())
	u1, u2, u3 := connect(t, s), connect(t, s), connect(t, s)

	u1.say(protocol.ChannelGlobal, "hi")

	for _, p := range []*testPeer{u2, u3} {
		m := p.next(t)
		if m.Sender != u1.id || m.Channel != protocol.ChannelGlobal || m.Text() != "hi" {
			t.Errorf("user %d: expected hi from %d on global, got %q from %d on %d",
				p.id, u1.id, m.Text(), m.Sender, m.Channel)
		}
		p.expectQuiet(t)
	}
	u1.expectQuiet(t)
}

func TestChatSenderIsStamped(t *testing.T) {
	s := newTestServer(t, testConfig())
	a, b := connect(t, s), connect(t, s)

	forged := protocol.NewTextMessage(protocol.ChannelGlobal, "not me", time.Now())
	forged.Sender = b.id
	a.send(forged)

	if m := b.next(t); m.Sender != a.id {
		t.Errorf("expected sender %d but got %d", a.id, m.Sender)
	}
}

func TestChatRejected(t *testing.T) {
	s := newTestServer(t, testConfig())
	a, b := connect(t, s), connect(t, s)

	tests := []struct {
		name    string
		channel protocol.ChannelID
		code    int
	}{
		{name: "Error: Unknown user channel", channel: 150, code: errs.ErrChannelNotFound},
		{name: "Error: Reserved channel", channel: 42, code: errs.ErrChannelNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a.say(tt.channel, "lost")
			a.expectError(t, tt.code)
		})
	}

	// A channel a is not part of.
	b.sendControl(protocol.Control{Type: protocol.TypeCreateChannel, Text: "private"})
	cid := b.expectControl(t, protocol.TypeUserNewChannel).ChannelID
	b.expectControl(t, protocol.TypeUserListSync)

	a.say(cid, "let me in")
	a.expectError(t, errs.ErrNotMember)
	b.expectQuiet(t)
}

func TestCreateChannelWithInvitee(t *testing.T) {
	s := newTestServer(t, testConfig())
	a, b := connect(t, s), connect(t, s)
	a.setName(t, "Alice", b)
	b.setName(t, "Bob", a)

	a.sendControl(protocol.Control{Type: protocol.TypeCreateChannel, UserID: b.id})

	created := a.expectControl(t, protocol.TypeUserNewChannel)
	if created.ChannelID < protocol.FirstUserChannel {
		t.Fatalf("expected a user channel ID, got %d", created.ChannelID)
	}
	if want, got := "Alice & Bob", created.Text; want != got {
		t.Errorf("expected default name %q but got %q", want, got)
	}
	assertIDs(t, []protocol.UserID{a.id}, a.expectControl(t, protocol.TypeUserListSync).UserIDs)

	joined := a.expectControl(t, protocol.TypeUserJoin)
	if joined.UserID != b.id || joined.Text != "Bob" {
		t.Errorf("expected Bob to join, got %+v", joined)
	}

	invited := b.expectControl(t, protocol.TypeUserNewChannel)
	if invited.ChannelID != created.ChannelID {
		t.Errorf("expected channel %d but got %d", created.ChannelID, invited.ChannelID)
	}
	assertIDs(t, []protocol.UserID{a.id, b.id}, b.expectControl(t, protocol.TypeUserListSync).UserIDs)

	b.say(created.ChannelID, "private hello")
	if m := a.next(t); m.Text() != "private hello" || m.Channel != created.ChannelID {
		t.Errorf("expected private hello on %d, got %q on %d", created.ChannelID, m.Text(), m.Channel)
	}
}

func TestFirstNameReachesPrivateChannelMates(t *testing.T) {
	s := newTestServer(t, testConfig())
	a, b := connect(t, s), connect(t, s)
	a.setName(t, "Alice", b)

	a.sendControl(protocol.Control{Type: protocol.TypeCreateChannel, UserID: b.id})
	a.expectControl(t, protocol.TypeUserNewChannel)
	a.expectControl(t, protocol.TypeUserListSync)
	a.expectControl(t, protocol.TypeUserJoin)
	b.expectControl(t, protocol.TypeUserNewChannel)
	b.expectControl(t, protocol.TypeUserListSync)

	// every user is on global, so the global announcement covers private mates
	b.sendControl(protocol.Control{Type: protocol.TypeUserNameSet, Text: "Bob"})
	m := a.next(t)
	ctrl, err := m.Control()
	if err != nil || ctrl.Type != protocol.TypeUserJoin || m.Channel != protocol.ChannelGlobal {
		t.Fatalf("expected a UserJoin on global, got %+v on %d (%v)", ctrl, m.Channel, err)
	}
	if ctrl.UserID != b.id || ctrl.Text != "Bob" {
		t.Errorf("expected Bob to be announced, got %+v", ctrl)
	}
	a.expectQuiet(t)
}

func TestCreateChannelDefaultNameAlone(t *testing.T) {
	s := newTestServer(t, testConfig())
	a := connect(t, s)
	a.setName(t, "Alice")

	a.sendControl(protocol.Control{Type: protocol.TypeCreateChannel})

	if want, got := "Alice's channel", a.expectControl(t, protocol.TypeUserNewChannel).Text; want != got {
		t.Errorf("expected %q but got %q", want, got)
	}

	a.sendControl(protocol.Control{Type: protocol.TypeCreateChannel, UserID: 99})
	a.expectControl(t, protocol.TypeUserListSync)
	a.expectError(t, errs.ErrUserNotFound)
}

func TestInviteRules(t *testing.T) {
	s := newTestServer(t, testConfig())
	a, b, c := connect(t, s), connect(t, s), connect(t, s)

	a.sendControl(protocol.Control{Type: protocol.TypeCreateChannel, Text: "room"})
	cid := a.expectControl(t, protocol.TypeUserNewChannel).ChannelID
	a.expectControl(t, protocol.TypeUserListSync)

	tests := []struct {
		name    string
		from    *testPeer
		channel protocol.ChannelID
		invitee protocol.UserID
		code    int
	}{
		{name: "Error: Global channel", from: a, channel: protocol.ChannelGlobal, invitee: b.id, code: errs.ErrGlobalChannel},
		{name: "Error: Unknown channel", from: a, channel: 500, invitee: b.id, code: errs.ErrChannelNotFound},
		{name: "Error: Requester not a member", from: c, channel: cid, invitee: b.id, code: errs.ErrNotMember},
		{name: "Error: Unknown invitee", from: a, channel: cid, invitee: 77, code: errs.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.from.sendControl(protocol.Control{Type: protocol.TypeUserInvite, ChannelID: tt.channel, UserID: tt.invitee})
			tt.from.expectError(t, tt.code)
		})
	}

	a.sendControl(protocol.Control{Type: protocol.TypeUserInvite, ChannelID: cid, UserID: b.id})
	b.expectControl(t, protocol.TypeUserNewChannel)
	b.expectControl(t, protocol.TypeUserListSync)
	a.expectControl(t, protocol.TypeUserJoin)

	// inviting an existing member changes nothing
	a.sendControl(protocol.Control{Type: protocol.TypeUserInvite, ChannelID: cid, UserID: b.id})
	a.expectQuiet(t)
	b.expectQuiet(t)
}

func TestLeaveChannel(t *testing.T) {
	s := newTestServer(t, testConfig())
	a, b := connect(t, s), connect(t, s)
	b.setName(t, "Bob", a)

	a.sendControl(protocol.Control{Type: protocol.TypeCreateChannel, UserID: b.id})
	cid := a.expectControl(t, protocol.TypeUserNewChannel).ChannelID
	a.expectControl(t, protocol.TypeUserListSync)
	a.expectControl(t, protocol.TypeUserJoin)
	b.expectControl(t, protocol.TypeUserNewChannel)
	b.expectControl(t, protocol.TypeUserListSync)

	b.sendControl(protocol.Control{Type: protocol.TypeUserLeaveChannel, ChannelID: cid})

	left := a.expectControl(t, protocol.TypeUserLeaveChannel)
	if left.ChannelID != cid || left.UserID != b.id || left.Text != "Bob" {
		t.Errorf("expected Bob to leave %d, got %+v", cid, left)
	}

	b.sendControl(protocol.Control{Type: protocol.TypeUserLeaveChannel, ChannelID: cid})
	b.expectError(t, errs.ErrNotMember)

	// the last member leaving destroys the channel
	a.sendControl(protocol.Control{Type: protocol.TypeUserLeaveChannel, ChannelID: cid})
	a.sendControl(protocol.Control{Type: protocol.TypeUserLeaveChannel, ChannelID: cid})
	a.expectError(t, errs.ErrChannelNotFound)

	a.sendControl(protocol.Control{Type: protocol.TypeUserLeaveChannel, ChannelID: protocol.ChannelGlobal})
	a.expectError(t, errs.ErrGlobalChannel)
}

func TestUserListSyncAndNameRequest(t *testing.T) {
	s := newTestServer(t, testConfig())
	a, b := connect(t, s), connect(t, s)
	b.setName(t, "Bob", a)

	a.sendControl(protocol.Control{Type: protocol.TypeUserListSync})
	assertIDs(t, []protocol.UserID{a.id, b.id}, a.expectControl(t, protocol.TypeUserListSync).UserIDs)

	tests := []struct {
		name string
		id   protocol.UserID
		want string
	}{
		{name: "Valid: Known user", id: b.id, want: "Bob"},
		{name: "Valid: Unnamed user", id: a.id, want: "unknown"},
		{name: "Valid: Missing user", id: 999, want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a.sendControl(protocol.Control{Type: protocol.TypeUserNameRequest, UserID: tt.id})
			ctrl := a.expectControl(t, protocol.TypeUserNameSend)
			if ctrl.UserID != tt.id || ctrl.Text != tt.want {
				t.Errorf("expected %d=%q, got %d=%q", tt.id, tt.want, ctrl.UserID, ctrl.Text)
			}
		})
	}
}

func TestSyncIsChunked(t *testing.T) {
	cfg := testConfig()
	cfg.MaxClients = 2 * protocol.MaxSyncIDs
	s := newTestServer(t, cfg)

	peers := make([]*testPeer, 0, protocol.MaxSyncIDs+3)
	for range protocol.MaxSyncIDs + 3 {
		peers = append(peers, connect(t, s))
	}
	last := peers[len(peers)-1]

	last.sendControl(protocol.Control{Type: protocol.TypeUserListSync})

	first := last.expectControl(t, protocol.TypeUserListSync).UserIDs
	second := last.expectControl(t, protocol.TypeUserListSync).UserIDs

	if want, got := protocol.MaxSyncIDs, len(first); want != got {
		t.Errorf("expected a full first chunk of %d, got %d", want, got)
	}
	if want, got := 3, len(second); want != got {
		t.Errorf("expected %d IDs in the second chunk, got %d", want, got)
	}

	all := append(slices.Clone(first), second...)
	if want, got := peers[0].id, all[0]; want != got {
		t.Errorf("expected the sync to start with %d, got %d", want, got)
	}
	if want, got := last.id, all[len(all)-1]; want != got {
		t.Errorf("expected the sync to end with %d, got %d", want, got)
	}
	last.expectQuiet(t)
}

func TestBadControlKeepsConnection(t *testing.T) {
	s := newTestServer(t, testConfig())
	a, b := connect(t, s), connect(t, s)

	a.sendControl(protocol.Control{Type: protocol.TypeUserIDGet, UserID: 5})
	a.expectError(t, errs.ErrUnexpectedDirection)

	unknown := protocol.Message{Channel: protocol.ChannelServer}
	unknown.SetContent([]byte{0xEE, 0, 0, 0})
	a.send(unknown)
	a.expectError(t, errs.ErrUnknownControlType)

	short := protocol.Message{Channel: protocol.ChannelServer}
	short.SetContent([]byte{byte(protocol.TypeUserInvite), 0, 0, 0, 1})
	a.send(short)
	a.expectError(t, errs.ErrPayloadTooShort)

	a.sendControl(protocol.Control{Type: protocol.TypePing})
	a.say(protocol.ChannelGlobal, "still here")

	if m := b.next(t); m.Text() != "still here" {
		t.Errorf("expected the chat after bad frames, got %q", m.Text())
	}
	a.expectQuiet(t)
}

func TestDisconnectNotifiesChannelMates(t *testing.T) {
	s := newTestServer(t, testConfig())
	a, b, c := connect(t, s), connect(t, s), connect(t, s)
	b.setName(t, "Bob", a, c)

	a.sendControl(protocol.Control{Type: protocol.TypeCreateChannel, UserID: b.id})
	cid := a.expectControl(t, protocol.TypeUserNewChannel).ChannelID
	a.expectControl(t, protocol.TypeUserListSync)
	a.expectControl(t, protocol.TypeUserJoin)

	b.disconnect(t)

	// a shares both channels with b, c only the global one
	for _, want := range []protocol.ChannelID{protocol.ChannelGlobal, cid} {
		m := a.next(t)
		ctrl, _ := m.Control()
		if ctrl.Type != protocol.TypeUserLeave || m.Channel != want || ctrl.UserID != b.id || ctrl.Text != "Bob" {
			t.Errorf("expected Bob to leave channel %d, got %s on %d (%+v)", want, ctrl.Type, m.Channel, ctrl)
		}
	}
	if ctrl := c.expectControl(t, protocol.TypeUserLeave); ctrl.UserID != b.id {
		t.Errorf("expected user %d to leave, got %d", b.id, ctrl.UserID)
	}
	c.expectQuiet(t)

	stats, err := s.Hub().Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if want, got := 2, stats.Users; want != got {
		t.Errorf("expected %d users but got %d", want, got)
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	s := newTestServer(t, testConfig())
	a := connect(t, s)
	// an unbuffered out channel that nobody drains after the handshake
	slow := connectBuffered(t, s, 0)

	for i := range sendQueueSize + 10 {
		a.say(protocol.ChannelGlobal, string(rune('a'+i%26)))
	}

	ctrl := a.expectControl(t, protocol.TypeUserLeave)
	if ctrl.UserID != slow.id {
		t.Errorf("expected user %d to be dropped, got %d", slow.id, ctrl.UserID)
	}

	select {
	case <-slow.done:
	case <-time.After(testTimeout):
		t.Fatal("slow client worker did not exit")
	}
	if !slow.conn.isClosed() {
		t.Error("expected the slow client's connection to be closed")
	}
}

func TestAdminSnapshots(t *testing.T) {
	s := newTestServer(t, testConfig())
	a, b := connect(t, s), connect(t, s)
	a.setName(t, "Alice", b)

	a.say(protocol.ChannelGlobal, "hello")
	b.next(t)

	channels, err := s.Hub().Channels()
	if err != nil {
		t.Fatalf("Channels failed: %v", err)
	}
	if len(channels) != 1 {
		t.Fatalf("expected only the global channel, got %+v", channels)
	}
	if want, got := (ChannelSummary{ID: protocol.ChannelGlobal, Name: "Global", Members: 2, History: 1}), channels[0]; want != got {
		t.Errorf("expected %+v but got %+v", want, got)
	}

	detail, err := s.Hub().Channel(protocol.ChannelGlobal)
	if err != nil {
		t.Fatalf("Channel failed: %v", err)
	}
	if len(detail.MemberList) != 2 || detail.MemberList[0].Nickname != "Alice" || detail.MemberList[0].Transport != "fake" {
		t.Errorf("unexpected members %+v", detail.MemberList)
	}
	if len(detail.Recent) != 1 || detail.Recent[0].Text != "hello" || detail.Recent[0].SenderName != "Alice" {
		t.Errorf("unexpected history %+v", detail.Recent)
	}

	_, err = s.Hub().Channel(404)
	assertCode(t, errs.ErrChannelNotFound, err)

	stats, err := s.Hub().Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Users != 2 || stats.Channels != 1 || stats.Transports["fake"] != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestKick(t *testing.T) {
	s := newTestServer(t, testConfig())
	a, b := connect(t, s), connect(t, s)
	b.setName(t, "Bob", a)

	users, err := s.Hub().Users()
	if err != nil {
		t.Fatalf("Users failed: %v", err)
	}
	if len(users) != 2 || users[1].ID != b.id || users[1].Nickname != "Bob" {
		t.Fatalf("unexpected users %+v", users)
	}

	if err := s.Hub().Kick(b.id, "spam"); err != nil {
		t.Fatalf("Kick failed: %v", err)
	}

	ctrl := b.expectControl(t, protocol.TypeError)
	if int(ctrl.Code) != errs.ErrKicked || ctrl.Text != "Disconnected by an administrator: spam" {
		t.Errorf("expected the kick reason, got %d %q", ctrl.Code, ctrl.Text)
	}
	select {
	case <-b.done:
	case <-time.After(testTimeout):
		t.Fatal("kicked worker did not exit")
	}

	if left := a.expectControl(t, protocol.TypeUserLeave); left.UserID != b.id {
		t.Errorf("expected user %d to leave, got %d", b.id, left.UserID)
	}

	assertCode(t, errs.ErrUserNotFound, s.Hub().Kick(b.id, "again"))
}
