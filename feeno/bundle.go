package feeno

import (
	"encoding/json"
)

type BundleStatus string

const (
	BundleStatusInProgress BundleStatus = "inProgress"
	BundleStatusCanceled   BundleStatus = "canceled"
	BundleStatusMined      BundleStatus = "mined"
)

// BundleRecord is the bundle as written by the submission service.
// Fields this node does not know about are kept as is so a read-modify-write never drops them.
type BundleRecord struct {
	ID                    string          `json:"id,omitempty"`
	Status                BundleStatus    `json:"status"`
	BroadcastCount        int             `json:"broadcastCount"`
	BlocksCountToResubmit int             `json:"blocksCountToResubmit"`
	Transactions          json.RawMessage `json:"transactions,omitempty"`
	BloxrouteURL          string          `json:"bloxrouteUrl,omitempty"`

	extra map[string]json.RawMessage
}

type bundleRecordFields BundleRecord

var bundleRecordKnownFields = []string{"id", "status", "broadcastCount", "blocksCountToResubmit", "transactions", "bloxrouteUrl"}

func (b *BundleRecord) UnmarshalJSON(data []byte) error {
	var fields bundleRecordFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var extra map[string]json.RawMessage
	if err := json.Unmarshal(data, &extra); err != nil {
		return err
	}
	for _, name := range bundleRecordKnownFields {
		delete(extra, name)
	}
	*b = BundleRecord(fields)
	if len(extra) > 0 {
		b.extra = extra
	}
	return nil
}

func (b BundleRecord) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(bundleRecordFields(b))
	if err != nil || len(b.extra) == 0 {
		return data, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for name, value := range b.extra {
		if _, ok := merged[name]; !ok {
			merged[name] = value
		}
	}
	return json.Marshal(merged)
}

// Extra returns a field written by the submission service that this node does not model
func (b *BundleRecord) Extra(name string) (json.RawMessage, bool) {
	v, ok := b.extra[name]
	return v, ok
}

// Redacted strips raw transactions and relay routing data
func (b BundleRecord) Redacted() BundleRecord {
	b.Transactions = nil
	b.BloxrouteURL = ""
	return b
}
