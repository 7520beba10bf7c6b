package session

import (
	"errors"
	"strings"
)

// UnknownClientType is reported for records written without a client type.
const UnknownClientType = "UNKNOWN"

// ErrRecordCorrupt is returned when a stored record cannot be parsed.
var ErrRecordCorrupt = errors.New("session record corrupt")

// Record is the value stored under a refresh jti.
type Record struct {
	UserID     string
	DeviceID   string
	ClientType string
}

// Encode renders the record as userId:deviceId:clientType.
func (r Record) Encode() string {
	clientType := r.ClientType
	if clientType == "" {
		clientType = UnknownClientType
	}
	return r.UserID + ":" + r.DeviceID + ":" + clientType
}

// ParseRecord parses a stored record value.
//
// The user ID ends at the first colon and the client type starts after the
// last one, so device IDs may contain colons. A two-field legacy value has
// its client type reported as UnknownClientType.
func ParseRecord(value string) (Record, error) {
	first := strings.IndexByte(value, ':')
	if first <= 0 {
		return Record{}, ErrRecordCorrupt
	}
	last := strings.LastIndexByte(value, ':')

	if first == last {
		deviceID := value[first+1:]
		if deviceID == "" {
			return Record{}, ErrRecordCorrupt
		}
		return Record{UserID: value[:first], DeviceID: deviceID, ClientType: UnknownClientType}, nil
	}

	rec := Record{
		UserID:     value[:first],
		DeviceID:   value[first+1 : last],
		ClientType: value[last+1:],
	}
	if rec.DeviceID == "" {
		return Record{}, ErrRecordCorrupt
	}
	if rec.ClientType == "" {
		rec.ClientType = UnknownClientType
	}
	return rec, nil
}
