package relay

import (
	"fmt"
	"strconv"
)

// Frame types sent by devices.
const (
	frameHello           = "hello"
	framePair            = "pair"
	frameUnlink          = "unlink"
	frameLibraryResponse = "library_response"
	frameLibrary         = "library" // legacy alias for library_response
)

// Frame types sent to devices.
const (
	framePairResult     = "pair_result"
	frameDiscordMessage = "discord_message"
	frameGetLibrary     = "get_library"
	frameForceUnlink    = "force_unlink"
)

// Failure reasons carried in pair_result frames.
const (
	reasonMissingFields   = "missing_fields"
	reasonMissingDeviceID = "missing_device_id"
	reasonInvalidCode     = "invalid_code"
	reasonNotLinked       = "not_linked"
)

// inboundFrame is the superset of fields across all device-originated
// frames. Unknown fields are ignored so newer devices can talk to older
// relays.
type inboundFrame struct {
	Type       string `json:"type"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	Code       string `json:"code"`
	RequestID  any    `json:"request_id"`
	Apps       any    `json:"apps"`
	Library    any    `json:"library"`
	Items      any    `json:"items"`
}

// requestID normalizes the echoed request ID to a string. The relay
// always sends request IDs as strings, but some device builds echo them
// back as JSON numbers.
func (f *inboundFrame) requestID() string {
	switch id := f.RequestID.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}

// libraryPayload returns the library listing from whichever field the
// device used. Older builds report "library" or "items" instead of "apps".
func (f *inboundFrame) libraryPayload() any {
	if f.Apps != nil {
		return f.Apps
	}
	if f.Library != nil {
		return f.Library
	}
	return f.Items
}

type helloAck struct {
	Type string `json:"type"`
	OK   bool   `json:"ok"`
}

type pairResult struct {
	Type      string `json:"type"`
	OK        bool   `json:"ok"`
	Reason    string `json:"reason,omitempty"`
	DiscordID string `json:"discord_id,omitempty"`
}

type discordMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type getLibrary struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
}

type forceUnlink struct {
	Type string `json:"type"`
}

func newHelloAck() helloAck {
	return helloAck{Type: frameHello, OK: true}
}

func pairOK(discordID string) pairResult {
	return pairResult{Type: framePairResult, OK: true, DiscordID: discordID}
}

func pairFailed(reason string) pairResult {
	return pairResult{Type: framePairResult, OK: false, Reason: reason}
}
