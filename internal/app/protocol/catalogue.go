package protocol

import "fmt"

// MessageType is the discriminant leading every control payload.
type MessageType uint32

// Control message types. Zero is never a valid discriminant.
const (
	TypePing MessageType = iota + 1
	TypeUserIDGet
	TypeUserListSync
	TypeUserJoin
	TypeUserLeave
	TypeUserLeaveChannel
	TypeUserNameRequest
	TypeUserNameSend
	TypeUserNewChannel
	TypeCreateChannel
	TypeUserInvite
	TypeUserNameSet
	TypeError
)

// Direction is a bit set of the sides allowed to send a control type.
type Direction uint8

const (
	ClientToServer Direction = 1 << iota
	ServerToClient

	Bidirectional = ClientToServer | ServerToClient
)

type field uint8

const (
	fieldUserID field = iota
	fieldChannelID
	fieldCode
	// trailing fields, at most one per layout
	fieldUserIDs
	fieldText
)

type typeSpec struct {
	name   string
	dir    Direction
	layout []field
}

var catalogue = map[MessageType]typeSpec{
	TypePing:             {"Ping", ClientToServer, nil},
	TypeUserIDGet:        {"UserIDGet", ServerToClient, []field{fieldUserID}},
	TypeUserListSync:     {"UserListSync", Bidirectional, []field{fieldUserIDs}},
	TypeUserJoin:         {"UserJoin", ServerToClient, []field{fieldUserID, fieldText}},
	TypeUserLeave:        {"UserLeave", ServerToClient, []field{fieldUserID, fieldText}},
	TypeUserLeaveChannel: {"UserLeaveChannel", Bidirectional, []field{fieldChannelID, fieldUserID, fieldText}},
	TypeUserNameRequest:  {"UserNameRequest", ClientToServer, []field{fieldUserID}},
	TypeUserNameSend:     {"UserNameSend", ServerToClient, []field{fieldUserID, fieldText}},
	TypeUserNewChannel:   {"UserNewChannel", ServerToClient, []field{fieldChannelID, fieldText}},
	TypeCreateChannel:    {"CreateChannel", ClientToServer, []field{fieldUserID, fieldText}},
	TypeUserInvite:       {"UserInvite", ClientToServer, []field{fieldChannelID, fieldUserID}},
	TypeUserNameSet:      {"UserNameSet", ClientToServer, []field{fieldText}},
	TypeError:            {"Error", ServerToClient, []field{fieldCode, fieldText}},
}

// Valid reports whether t is in the catalogue.
func (t MessageType) Valid() bool {
	_, ok := catalogue[t]
	return ok
}

// Allows reports whether a control of type t may travel in direction d.
func (t MessageType) Allows(d Direction) bool {
	spec, ok := catalogue[t]
	return ok && spec.dir&d == d
}

func (t MessageType) String() string {
	if spec, ok := catalogue[t]; ok {
		return spec.name
	}
	return fmt.Sprintf("MessageType(%d)", uint32(t))
}
