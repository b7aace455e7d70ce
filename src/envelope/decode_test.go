package envelope

import (
	"encoding/json"
	"testing"

	"github.com/orchestra-mcp/notify-harness/src/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCategoryCreated(t *testing.T) {
	frame := `{"type":"category_update","user_id":"u1","payload":{"action":"created",
		"category":{"id":"c1","title":"Work","userId":"u1","createdAt":"t0","updatedAt":"t0"}}}`

	env, err := Decode([]byte(frame))
	require.NoError(t, err)

	assert.Equal(t, types.CategoryUpdate, env.Type)
	assert.Equal(t, types.ActionCreated, env.Payload.Action)
	require.NotNil(t, env.Payload.Category)
	assert.Equal(t, "Work", env.Payload.Category.Title)
	assert.Equal(t, "c1", env.ResourceID())
	assert.Equal(t, "u1", env.OwnerID())
}

func TestDecodeStatementDeleted(t *testing.T) {
	env, err := Decode([]byte(`{"type":"statement_update","payload":{"action":"deleted","statementId":"s9"}}`))
	require.NoError(t, err)

	assert.Equal(t, types.ActionDeleted, env.Payload.Action)
	assert.Nil(t, env.Payload.Statement)
	assert.Equal(t, "s9", env.ResourceID())
}

func TestDecodeAckKeepsRawPayload(t *testing.T) {
	env, err := Decode([]byte(`{"type":"ack","payload":"Message received"}`))
	require.NoError(t, err)

	assert.Equal(t, types.Ack, env.Type)
	assert.JSONEq(t, `"Message received"`, string(env.Raw))
}

func TestDecodeWelcome(t *testing.T) {
	env, err := Decode([]byte(`{"type":"connected","payload":{"userId":"u1","clientId":"01J"}}`))
	require.NoError(t, err)

	w, err := DecodeWelcome(env)
	require.NoError(t, err)
	assert.Equal(t, "u1", w.UserID)
	assert.Equal(t, "01J", w.ClientID)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":          `{"type":`,
		"unknown type":      `{"type":"mystery","payload":{}}`,
		"missing payload":   `{"type":"category_update"}`,
		"unknown action":    `{"type":"category_update","payload":{"action":"renamed","categoryId":"c1"}}`,
		"created no body":   `{"type":"category_update","payload":{"action":"created"}}`,
		"deleted no id":     `{"type":"statement_update","payload":{"action":"deleted"}}`,
		"statement no text": `{"type":"statement_update","payload":{"action":"created","statement":{"id":"s","userId":"u","categoryId":"c"}}}`,
		"empty id":          `{"type":"category_update","payload":{"action":"deleted","categoryId":""}}`,
	}
	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(frame))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestDecodeRoundTripsServerFrame(t *testing.T) {
	in := types.StatementEnvelope(types.ActionUpdated, types.Statement{
		ID: "s1", Text: "hello", UserID: "u1", CategoryID: "c2",
	})
	data, err := json.Marshal(in.Frame())
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in.Payload, out.Payload)
	assert.Equal(t, "u1", out.UserID)
}
