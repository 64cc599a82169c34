// Package protocol defines the dialogs wire protocol exchanged with the chat
// backend: JSON text frames discriminated by a "type" field.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// PageSize is the fixed number of dialogs requested per page.
const PageSize = 30

// DeletePrefix marks command ids that correlate a batch delete with its
// success acknowledgment.
const DeletePrefix = "DEL-"

// deleteSeparator joins uids inside a delete command id.
const deleteSeparator = ";"

var (
	// ErrMalformed is wrapped by ProtocolError when a payload cannot be parsed.
	ErrMalformed = errors.New("malformed payload")
	// ErrUnknownType is returned when encoding a message without a known type.
	ErrUnknownType = errors.New("unknown message type")
)

// ProtocolError reports a payload that violates the wire format.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// MessageType represents the type of message
type MessageType int

const (
	MessageTypeUnknown MessageType = iota
	MessageTypeDialogs
	MessageTypeDelete
	MessageTypeMessage
	MessageTypeSuccess
)

// String returns the wire discriminator of MessageType
func (mt MessageType) String() string {
	switch mt {
	case MessageTypeDialogs:
		return "dialogs"
	case MessageTypeDelete:
		return "delete"
	case MessageTypeMessage:
		return "message"
	case MessageTypeSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// ParseMessageType maps a wire discriminator to MessageType.
// Unrecognized values map to MessageTypeUnknown so receivers can ignore them.
func ParseMessageType(s string) MessageType {
	switch s {
	case "dialogs":
		return MessageTypeDialogs
	case "delete":
		return MessageTypeDelete
	case "message":
		return MessageTypeMessage
	case "success":
		return MessageTypeSuccess
	default:
		return MessageTypeUnknown
	}
}

// Dialog is a conversation summary as carried on the wire.
type Dialog struct {
	UID     string `json:"uid"`
	Name    string `json:"name"`
	Message string `json:"message"`
	IsOwn   bool   `json:"isOwn"`
	IsRead  bool   `json:"isRead"`
}

// Message is the union of every frame of the dialogs protocol.
// Which fields are meaningful depends on Type:
//
//	dialogs (out): Offset, Limit      dialogs (in): Info
//	delete  (out): ID, UIDs           message (in): UID, Name, Text
//	success (in):  ID
type Message struct {
	Type   MessageType
	Offset int
	Limit  int
	ID     string
	UIDs   []string
	Info   []Dialog
	UID    string
	Name   string
	Text   string
}

// DialogsRequest builds an outbound page request.
func DialogsRequest(offset int) Message {
	return Message{Type: MessageTypeDialogs, Offset: offset, Limit: PageSize}
}

// DeleteRequest builds an outbound batch delete for uids. The command id is
// derived from the sorted uids so the same selection always yields the same id.
func DeleteRequest(uids []string) Message {
	sorted := append([]string(nil), uids...)
	sort.Strings(sorted)
	return Message{
		Type: MessageTypeDelete,
		ID:   DeletePrefix + strings.Join(sorted, deleteSeparator),
		UIDs: sorted,
	}
}

// IsDeleteConfirmation reports whether a success id acknowledges a delete.
func IsDeleteConfirmation(id string) bool {
	return strings.HasPrefix(id, DeletePrefix)
}

// ParseDeleteID extracts the uids encoded in a delete command id.
func ParseDeleteID(id string) ([]string, bool) {
	if !IsDeleteConfirmation(id) {
		return nil, false
	}
	rest := strings.TrimPrefix(id, DeletePrefix)
	if rest == "" {
		return nil, true
	}
	return strings.Split(rest, deleteSeparator), true
}

type wireMessage struct {
	Type   string   `json:"type"`
	Offset int      `json:"offset"`
	Limit  int      `json:"limit"`
	ID     string   `json:"id"`
	UIDs   []string `json:"uids"`
	Info   []Dialog `json:"info"`
	UID    string   `json:"uid"`
	Name   string   `json:"name"`
	Text   string   `json:"text"`
}

// Encode encodes the message into its JSON text frame
func (m *Message) Encode() ([]byte, error) {
	wire, err := m.toWire()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

// Decode decodes a JSON text frame into the message.
// Parse failures are reported as *ProtocolError wrapping ErrMalformed.
func (m *Message) Decode(data []byte) error {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return &ProtocolError{Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	if wire.Type == "" {
		return &ProtocolError{Err: fmt.Errorf("%w: missing type", ErrMalformed)}
	}
	m.fromWire(wire)
	return nil
}

// toWire picks the fields that belong to each frame type so zero values
// that matter (offset 0) are always present and unrelated fields never are.
func (m *Message) toWire() (any, error) {
	switch m.Type {
	case MessageTypeDialogs:
		if m.Info != nil {
			return struct {
				Type string   `json:"type"`
				Info []Dialog `json:"info"`
			}{m.Type.String(), m.Info}, nil
		}
		return struct {
			Type   string `json:"type"`
			Offset int    `json:"offset"`
			Limit  int    `json:"limit"`
		}{m.Type.String(), m.Offset, m.Limit}, nil
	case MessageTypeDelete:
		return struct {
			Type string   `json:"type"`
			ID   string   `json:"id"`
			UIDs []string `json:"uids"`
		}{m.Type.String(), m.ID, m.UIDs}, nil
	case MessageTypeMessage:
		return struct {
			Type string `json:"type"`
			UID  string `json:"uid"`
			Name string `json:"name"`
			Text string `json:"text"`
		}{m.Type.String(), m.UID, m.Name, m.Text}, nil
	case MessageTypeSuccess:
		return struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		}{m.Type.String(), m.ID}, nil
	default:
		return nil, fmt.Errorf("failed to encode message: %w: %d", ErrUnknownType, m.Type)
	}
}

func (m *Message) fromWire(wire wireMessage) {
	*m = Message{
		Type:   ParseMessageType(wire.Type),
		Offset: wire.Offset,
		Limit:  wire.Limit,
		ID:     wire.ID,
		UIDs:   wire.UIDs,
		Info:   wire.Info,
		UID:    wire.UID,
		Name:   wire.Name,
		Text:   wire.Text,
	}
}
