package command

import (
	"bytes"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/danmuck/remotectl/internal/protocol/frame"
	"github.com/danmuck/remotectl/internal/protocol/schema"
	"github.com/danmuck/remotectl/internal/protocol/tlv"
)

var nextMessageID atomic.Uint64

// WriteChain encodes chain as one command-chain frame.
func WriteChain(w io.Writer, chain Chain, limits frame.Limits) error {
	if chain.Len() == 0 {
		return ErrEmptyChain
	}
	fields := []tlv.Field{
		tlv.String(schema.FieldChainID, chain.id),
		tlv.String(schema.FieldDialect, chain.dialect.String()),
	}
	for _, c := range chain.commands {
		fields = append(fields, tlv.Bytes(schema.FieldCommand, encodeCommand(c)))
	}
	if err := schema.Validate(schema.MsgCommandChain, fields); err != nil {
		return err
	}
	f := frame.New(schema.MsgCommandChain, nextMessageID.Add(1), tlv.EncodeFields(fields))
	return frame.WriteFrame(w, f, limits)
}

// EncodeChain is WriteChain into a fresh buffer.
func EncodeChain(chain Chain, limits frame.Limits) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteChain(&buf, chain, limits); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeCommand(c Command) []byte {
	fields := []tlv.Field{
		tlv.String(schema.FieldDialect, c.dialect.String()),
		tlv.Bytes(schema.FieldPayload, c.payload),
		tlv.Bytes(schema.FieldDefinition, c.definition),
	}
	for _, d := range c.dependencies {
		fields = append(fields, tlv.Bytes(schema.FieldDependency, d))
	}
	return tlv.EncodeFields(fields)
}

// ReadChain decodes one command-chain frame. A dialect outside known fails
// with ChainTypeNotFoundError before any command is decoded.
func ReadChain(r io.Reader, limits frame.Limits, known DialectSet) (Chain, error) {
	f, err := frame.ReadExpected(r, limits, schema.MsgCommandChain)
	if err != nil {
		return Chain{}, err
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return Chain{}, err
	}
	if err := schema.Validate(schema.MsgCommandChain, fields); err != nil {
		return Chain{}, err
	}

	id, _ := tlv.GetField(fields, schema.FieldChainID)
	dialectField, _ := tlv.GetField(fields, schema.FieldDialect)
	dialect := Dialect(dialectField.Value)
	if !known.Contains(dialect) {
		return Chain{}, &ChainTypeNotFoundError{Dialect: dialect}
	}

	encoded := tlv.GetFields(fields, schema.FieldCommand)
	commands := make([]Command, 0, len(encoded))
	for i, ef := range encoded {
		c, err := decodeCommand(ef.Value)
		if err != nil {
			return Chain{}, fmt.Errorf("command %d: %w", i, err)
		}
		commands = append(commands, c)
	}
	return newChain(string(id.Value), dialect, commands)
}

func decodeCommand(b []byte) (Command, error) {
	fields, err := tlv.DecodeFields(b)
	if err != nil {
		return Command{}, err
	}
	if err := schema.Validate(schema.MsgCommand, fields); err != nil {
		return Command{}, err
	}
	dialect, _ := tlv.GetField(fields, schema.FieldDialect)
	payload, _ := tlv.GetField(fields, schema.FieldPayload)
	definition, _ := tlv.GetField(fields, schema.FieldDefinition)
	deps := make([][]byte, 0)
	for _, d := range tlv.GetFields(fields, schema.FieldDependency) {
		deps = append(deps, d.Value)
	}
	return New(Dialect(dialect.Value), payload.Value, definition.Value, deps)
}
