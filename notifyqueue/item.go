package notifyqueue

import (
	"encoding/binary"
	"errors"
	"time"
)

var errInvalidPackedData = errors.New("invalid packed data")

// item header: priority(1) attempt(2) expires unix ms(8) enqueued unix ns(8)
const headerLen = 1 + 2 + 8 + 8

type item struct {
	payload  []byte
	due      time.Time
	expires  time.Time
	enqueued time.Time
	urgent   bool
	attempt  uint16
}

// encode returns the sorted set score and member of the item.
// The score is the due time, members with equal scores sort by their bytes,
// so the header puts urgent items first, then fewer attempts, then older items.
func (it item) encode() (float64, []byte) {
	member := make([]byte, headerLen, headerLen+len(it.payload))
	if !it.urgent {
		member[0] = 1
	}
	binary.BigEndian.PutUint16(member[1:], it.attempt)
	binary.BigEndian.PutUint64(member[3:], uint64(it.expires.UnixMilli()))
	binary.BigEndian.PutUint64(member[11:], uint64(it.enqueued.UnixNano()))
	member = append(member, it.payload...)
	return float64(it.due.UnixMilli()), member
}

func decodeItem(score float64, member []byte) (item, error) {
	if len(member) < headerLen {
		return item{}, errInvalidPackedData
	}
	return item{
		payload:  member[headerLen:],
		due:      time.UnixMilli(int64(score)),
		expires:  time.UnixMilli(int64(binary.BigEndian.Uint64(member[3:]))),
		enqueued: time.Unix(0, int64(binary.BigEndian.Uint64(member[11:]))),
		urgent:   member[0] == 0,
		attempt:  binary.BigEndian.Uint16(member[1:]),
	}, nil
}
