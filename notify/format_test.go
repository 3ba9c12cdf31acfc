package notify

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBroadcastsUnmarshal(t *testing.T) {
	testCases := map[string]struct {
		input    string
		expected Broadcasts
		err      bool
	}{
		"string": {input: `"2/5"`, expected: "2/5"},
		"number": {input: `3`, expected: "3"},
		"null":   {input: `null`, expected: ""},
		"object": {input: `{}`, err: true},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			var b Broadcasts
			err := json.Unmarshal([]byte(tc.input), &b)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, b)
		})
	}
}

func TestFormatCancel(t *testing.T) {
	msg, err := formatCancel(json.RawMessage(`{"bundleId":"feeno-1","broadcasts":"1/3","initiator":"User"}`))
	require.NoError(t, err)
	require.Equal(t, CancelEventName, msg.Kind)
	require.Equal(t, "Bundle canceled\nBundle: feeno-1\nBroadcasts: 1/3\nInitiator: User", msg.Text)

	msg, err = formatCancel(json.RawMessage(`{"bundleId":"feeno-1","broadcasts":2}`))
	require.NoError(t, err)
	require.Equal(t, "Bundle canceled\nBundle: feeno-1\nBroadcasts: 2\nInitiator: unknown", msg.Text)

	_, err = formatCancel(json.RawMessage(`{"broadcasts":2}`))
	require.ErrorIs(t, err, errEmptyEvent)
}

func TestFormatTxMined(t *testing.T) {
	msg, err := formatTxMined(json.RawMessage(`{"bundleId":"feeno-2","transactionHash":"0xabc","broadcasts":"4/4"}`))
	require.NoError(t, err)
	require.Equal(t, "Bundle mined\nBundle: feeno-2\nTransaction: 0xabc\nBroadcasts: 4/4", msg.Text)

	msg, err = formatTxMined(json.RawMessage(`{"bundleId":"feeno-2","transactionHash":"0xabc","broadcasts":"4/4","cexSwapInfo":{ "symbol": "USDT" , "filled": true }}`))
	require.NoError(t, err)
	require.Equal(t, "Bundle mined\nBundle: feeno-2\nTransaction: 0xabc\nBroadcasts: 4/4\nCEX swap: {\"symbol\":\"USDT\",\"filled\":true}", msg.Text)

	msg, err = formatTxMined(json.RawMessage(`{"bundleId":"feeno-2","transactionHash":"0xabc","broadcasts":"4/4","cexSwapInfo":null}`))
	require.NoError(t, err)
	require.NotContains(t, msg.Text, "CEX swap")

	_, err = formatTxMined(json.RawMessage(`{"bundleId":"feeno-2"}`))
	require.ErrorIs(t, err, errEmptyEvent)
}

func TestFormatChatMessage(t *testing.T) {
	msg, err := formatChatMessage(json.RawMessage(`{"serviceName":"relayer","message":"balance low","tags":["ops","#alert"]}`))
	require.NoError(t, err)
	require.Equal(t, "[relayer] balance low\n#ops #alert", msg.Text)
	require.Equal(t, []string{"ops", "#alert"}, msg.Tags)

	msg, err = formatChatMessage(json.RawMessage(`{"message":"hello"}`))
	require.NoError(t, err)
	require.Equal(t, "hello", msg.Text)

	_, err = formatChatMessage(json.RawMessage(`{"serviceName":"relayer"}`))
	require.ErrorIs(t, err, errEmptyEvent)

	_, err = formatChatMessage(json.RawMessage(`[1]`))
	require.Error(t, err)
}
