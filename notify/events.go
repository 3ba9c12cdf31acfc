// Package notify turns bundle lifecycle events into chat alerts.
//
// Events reach the Dispatcher from two places: the lifecycle of this node (cancellations made through the API)
// and the message bus (events published by the submission service). Both are pushed to the notification queue,
// the queue workers format each event and hand it to the Sink.
package notify

import (
	"bytes"
	"encoding/json"
)

// Routing keys of the events consumed from the bus
const (
	CancelEventName      = "FeenoCancelEvent"
	TxMinedEventName     = "FeenoTxMinedEvent"
	ChatMessageEventName = "FeenoSendMessageToChatEvent"
)

// Redis keys of the notification pipeline, kept apart from the bundle and quote keys
const (
	QueueKey      = "notify:queue"
	SeenKeyPrefix = "notify:seen:"
)

// Broadcasts is the "<sent>/<planned>" counter of a bundle.
// Publishers send it either as a string or as a bare number.
type Broadcasts string

func (b *Broadcasts) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = Broadcasts(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*b = Broadcasts(n.String())
	return nil
}

type CancelEvent struct {
	BundleID   string     `json:"bundleId"`
	Broadcasts Broadcasts `json:"broadcasts"`
	Initiator  string     `json:"initiator"`
}

type TxMinedEvent struct {
	BundleID        string          `json:"bundleId"`
	TransactionHash string          `json:"transactionHash"`
	Broadcasts      Broadcasts      `json:"broadcasts"`
	CEXSwapInfo     json.RawMessage `json:"cexSwapInfo,omitempty"`
}

type ChatMessageEvent struct {
	ServiceName string   `json:"serviceName"`
	Message     string   `json:"message"`
	Tags        []string `json:"tags,omitempty"`
}

// envelope is the queued form of an event
type envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}
