package sync

import (
	"encoding/json"

	"github.com/marcus/till/internal/models"
)

// payloadFields is the subset of a record payload the engine reads.
type payloadFields struct {
	ServerKey string `json:"serverId"`
	UpdatedAt string `json:"updatedAt"`
}

func readPayload(raw json.RawMessage) payloadFields {
	var f payloadFields
	json.Unmarshal(raw, &f)
	return f
}

// withServerKey returns payload with serverId set. Payloads that are not
// JSON objects are returned unchanged.
func withServerKey(payload json.RawMessage, serverKey string) json.RawMessage {
	if serverKey == "" {
		return payload
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil || obj == nil {
		return payload
	}
	obj["serverId"], _ = json.Marshal(serverKey)
	out, err := json.Marshal(obj)
	if err != nil {
		return payload
	}
	return out
}

// remoteNewer applies last-write-wins. Ties and unreadable remote stamps
// keep the local copy.
func remoteNewer(localUpdatedAt, remoteUpdatedAt string) bool {
	remote, err := models.ParseTime(remoteUpdatedAt)
	if err != nil {
		return false
	}
	local, err := models.ParseTime(localUpdatedAt)
	if err != nil {
		return true
	}
	return remote.After(local)
}
