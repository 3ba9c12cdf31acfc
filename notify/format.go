package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

var errEmptyEvent = errors.New("event is missing required fields")

// Message is a formatted alert
type Message struct {
	Kind string   `json:"kind"`
	Text string   `json:"text"`
	Tags []string `json:"tags,omitempty"`
}

type formatter func(payload json.RawMessage) (Message, error)

var formatters = map[string]formatter{
	CancelEventName:      formatCancel,
	TxMinedEventName:     formatTxMined,
	ChatMessageEventName: formatChatMessage,
}

func formatCancel(payload json.RawMessage) (Message, error) {
	var ev CancelEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Message{}, err
	}
	if ev.BundleID == "" {
		return Message{}, errEmptyEvent
	}
	var sb strings.Builder
	sb.WriteString("Bundle canceled\n")
	sb.WriteString("Bundle: " + ev.BundleID + "\n")
	sb.WriteString("Broadcasts: " + string(ev.Broadcasts) + "\n")
	initiator := ev.Initiator
	if initiator == "" {
		initiator = "unknown"
	}
	sb.WriteString("Initiator: " + initiator)
	return Message{Kind: CancelEventName, Text: sb.String()}, nil
}

func formatTxMined(payload json.RawMessage) (Message, error) {
	var ev TxMinedEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Message{}, err
	}
	if ev.BundleID == "" || ev.TransactionHash == "" {
		return Message{}, errEmptyEvent
	}
	var sb strings.Builder
	sb.WriteString("Bundle mined\n")
	sb.WriteString("Bundle: " + ev.BundleID + "\n")
	sb.WriteString("Transaction: " + ev.TransactionHash + "\n")
	sb.WriteString("Broadcasts: " + string(ev.Broadcasts))
	if info := bytes.TrimSpace(ev.CEXSwapInfo); len(info) > 0 && !bytes.Equal(info, []byte("null")) {
		var compact bytes.Buffer
		if err := json.Compact(&compact, info); err != nil {
			return Message{}, err
		}
		sb.WriteString("\nCEX swap: " + compact.String())
	}
	return Message{Kind: TxMinedEventName, Text: sb.String()}, nil
}

func formatChatMessage(payload json.RawMessage) (Message, error) {
	var ev ChatMessageEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Message{}, err
	}
	if ev.Message == "" {
		return Message{}, errEmptyEvent
	}
	text := ev.Message
	if ev.ServiceName != "" {
		text = "[" + ev.ServiceName + "] " + text
	}
	if len(ev.Tags) > 0 {
		tags := make([]string, len(ev.Tags))
		for i, tag := range ev.Tags {
			tags[i] = "#" + strings.TrimPrefix(tag, "#")
		}
		text += "\n" + strings.Join(tags, " ")
	}
	return Message{Kind: ChatMessageEventName, Text: text, Tags: ev.Tags}, nil
}
