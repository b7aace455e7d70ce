// Package envelope decodes push frames into typed envelopes.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/orchestra-mcp/notify-harness/src/types"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrMalformedFrame is returned for frames that are not valid JSON or do
// not match the envelope schema.
var ErrMalformedFrame = errors.New("malformed frame")

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaDoc))
		if err != nil {
			compileErr = fmt.Errorf("parse envelope schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			compileErr = fmt.Errorf("add envelope schema: %w", err)
			return
		}
		compiled, compileErr = c.Compile(schemaURL)
	})
	return compiled, compileErr
}

// wireEnvelope defers payload decoding until the type is known.
type wireEnvelope struct {
	Type    types.MessageType `json:"type"`
	Payload json.RawMessage   `json:"payload"`
	UserID  string            `json:"user_id,omitempty"`
}

// Decode parses one text frame. Any failure wraps ErrMalformedFrame.
func Decode(data []byte) (types.Envelope, error) {
	sch, err := schema()
	if err != nil {
		return types.Envelope{}, err
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if err := sch.Validate(inst); err != nil {
		return types.Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return types.Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	env := types.Envelope{Type: w.Type, UserID: w.UserID}
	switch w.Type {
	case types.CategoryUpdate, types.StatementUpdate:
		if err := json.Unmarshal(w.Payload, &env.Payload); err != nil {
			return types.Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
	default:
		env.Raw = append(json.RawMessage(nil), w.Payload...)
	}
	return env, nil
}

// Welcome is the payload of the server's connected frame.
type Welcome struct {
	UserID   string `json:"userId"`
	ClientID string `json:"clientId"`
}

// DecodeWelcome extracts the connected payload from an envelope.
func DecodeWelcome(env types.Envelope) (Welcome, error) {
	if env.Type != types.Connected {
		return Welcome{}, fmt.Errorf("%w: expected %s frame, got %s", ErrMalformedFrame, types.Connected, env.Type)
	}
	var w Welcome
	if err := json.Unmarshal(env.Raw, &w); err != nil {
		return Welcome{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return w, nil
}
