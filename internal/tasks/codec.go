package tasks

import (
	json "github.com/goccy/go-json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

const (
	// MetaDedupKey and MetaDedupToken carry the dedup lease through the
	// broker so the consumer can release it before handling.
	MetaDedupKey   = "dedup_key"
	MetaDedupToken = "dedup_token"
)

// Encode wraps a payload in a watermill message with a fresh UUID.
func Encode(payload any) (*message.Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return message.NewMessage(watermill.NewUUID(), body), nil
}

// Decode unmarshals a message body into dst.
func Decode(msg *message.Message, dst any) error {
	return json.Unmarshal(msg.Payload, dst)
}
