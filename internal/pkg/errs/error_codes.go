/*
Package errs provides custom error types and application-level error code constants.

These error codes identify transport, protocol and membership failures both inside the
server and on the wire, where they travel in Error control messages.
*/
package errs

// 1xxx: Transport and Request Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates a request body that is not JSON.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates a request body that could not be decoded.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates trailing data after the JSON document.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the connection or request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007

	// ErrConnectFailed indicates that the address could not be resolved or the dial was refused.
	ErrConnectFailed = 1101

	// ErrSendFailed indicates that writing a frame to the peer failed.
	ErrSendFailed = 1102

	// ErrNotConnected indicates an operation on a session without a live connection.
	ErrNotConnected = 1103

	// ErrServerFull indicates that the server reached its connection cap.
	ErrServerFull = 1104

	// ErrServerClosed indicates that the server is shutting down and no longer serves requests.
	ErrServerClosed = 1105

	// ErrKicked indicates that an administrator disconnected the user.
	ErrKicked = 1106
)

// 2xxx: Protocol Errors
const (
	// ErrMalformedFrame indicates a frame whose header fields are out of range.
	ErrMalformedFrame = 2001

	// ErrUnknownControlType indicates a control discriminant that is not in the catalogue.
	ErrUnknownControlType = 2002

	// ErrPayloadTooShort indicates a control payload shorter than its type's fixed fields.
	ErrPayloadTooShort = 2003

	// ErrUnexpectedDirection indicates a control type sent by the wrong side.
	ErrUnexpectedDirection = 2004
)

// 3xxx: Channel and User Errors
const (
	// ErrChannelNotFound indicates that the addressed channel does not exist.
	ErrChannelNotFound = 3001

	// ErrChannelFull indicates that the channel reached its member capacity.
	ErrChannelFull = 3002

	// ErrNotMember indicates that the requester is not a member of the addressed channel.
	ErrNotMember = 3003

	// ErrUserNotFound indicates that the referenced user is not connected.
	ErrUserNotFound = 3004

	// ErrInvalidUsername indicates that a username failed validation.
	ErrInvalidUsername = 3005

	// ErrGlobalChannel indicates an operation that is not allowed on the global channel.
	ErrGlobalChannel = 3006

	// ErrChannelLimit indicates that no more channels can be created.
	ErrChannelLimit = 3007
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
