/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
wire error reports and admin HTTP responses.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: Transport and Request Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Content-Type must be application/json.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Request body is not valid JSON.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request body contains extra content.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrConnectFailed:        {Code: ErrConnectFailed, Message: "Failed to connect to server.", Status: http.StatusBadGateway},
	ErrSendFailed:           {Code: ErrSendFailed, Message: "Failed to send message.", Status: http.StatusBadGateway},
	ErrNotConnected:         {Code: ErrNotConnected, Message: "Not connected to server.", Status: http.StatusServiceUnavailable},
	ErrServerFull:           {Code: ErrServerFull, Message: "Server is full.", Status: http.StatusServiceUnavailable},
	ErrServerClosed:         {Code: ErrServerClosed, Message: "Server is shutting down.", Status: http.StatusServiceUnavailable},
	ErrKicked:               {Code: ErrKicked, Message: "Disconnected by an administrator: %s", Status: http.StatusForbidden},

	// 2xxx: Protocol Errors
	ErrMalformedFrame:      {Code: ErrMalformedFrame, Message: "Malformed frame.", Status: http.StatusBadRequest},
	ErrUnknownControlType:  {Code: ErrUnknownControlType, Message: "Unknown control message type %d.", Status: http.StatusBadRequest},
	ErrPayloadTooShort:     {Code: ErrPayloadTooShort, Message: "Control payload too short.", Status: http.StatusBadRequest},
	ErrUnexpectedDirection: {Code: ErrUnexpectedDirection, Message: "Control message %s is not accepted by the server.", Status: http.StatusBadRequest},

	// 3xxx: Channel and User Errors
	ErrChannelNotFound: {Code: ErrChannelNotFound, Message: "Channel %d not found.", Status: http.StatusNotFound},
	ErrChannelFull:     {Code: ErrChannelFull, Message: "Channel %d is full.", Status: http.StatusConflict},
	ErrNotMember:       {Code: ErrNotMember, Message: "You are not a member of channel %d.", Status: http.StatusForbidden},
	ErrUserNotFound:    {Code: ErrUserNotFound, Message: "User %d not found.", Status: http.StatusNotFound},
	ErrInvalidUsername: {Code: ErrInvalidUsername, Message: "Invalid username.", Status: http.StatusBadRequest},
	ErrGlobalChannel:   {Code: ErrGlobalChannel, Message: "Not allowed on the global channel.", Status: http.StatusBadRequest},
	ErrChannelLimit:    {Code: ErrChannelLimit, Message: "Channel limit reached.", Status: http.StatusConflict},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
