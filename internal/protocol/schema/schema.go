package schema

import (
	"fmt"

	"github.com/danmuck/remotectl/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Message type IDs carried in the frame header.
const (
	MsgCommandChain uint32 = 1
	MsgCommand      uint32 = 2
	MsgResult       uint32 = 3
)

// Field IDs.
const (
	FieldChainID uint16 = 1
	FieldDialect uint16 = 2
	FieldCommand uint16 = 3

	FieldPayload    uint16 = 100
	FieldDefinition uint16 = 101
	FieldDependency uint16 = 102

	FieldResultKind    uint16 = 200
	FieldResultData    uint16 = 201
	FieldResultRepr    uint16 = 202
	FieldResultWrapper uint16 = 203
)

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var requirements = map[uint32][]Requirement{
	MsgCommandChain: {
		{FieldChainID, tlv.TypeString},
		{FieldDialect, tlv.TypeString},
		{FieldCommand, tlv.TypeBytes},
	},
	MsgCommand: {
		{FieldDialect, tlv.TypeString},
		{FieldPayload, tlv.TypeBytes},
		{FieldDefinition, tlv.TypeBytes},
	},
	MsgResult: {
		{FieldResultKind, tlv.TypeU8},
	},
}

// repeated lists fields that may appear more than once; every occurrence is
// type checked.
var repeated = map[uint32][]Requirement{
	MsgCommandChain: {{FieldCommand, tlv.TypeBytes}},
	MsgCommand:      {{FieldDependency, tlv.TypeBytes}},
}

// Validate enforces required fields and required field types for a message type.
// Unknown fields are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	log.Trace().Uint32("message_type", messageType).Int("fields", len(fields)).Msg("schema validate")
	reqs, ok := requirements[messageType]
	if !ok {
		log.Error().Uint32("message_type", messageType).Msg("schema validate unknown message type")
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			log.Debug().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Msg("schema validate missing field")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Debug().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema validate type mismatch")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	for _, req := range repeated[messageType] {
		for _, f := range tlv.GetFields(fields, req.ID) {
			if f.Type != req.Type {
				return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
			}
		}
	}
	return nil
}
