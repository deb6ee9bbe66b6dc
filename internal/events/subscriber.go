package events

import (
	"encoding/json"
	"fmt"
)

// Message is one event received from the bus.
type Message struct {
	Topic string
	Data  []byte
}

// Decode unmarshals the message payload.
func (m Message) Decode() (RecordsChanged, error) {
	var ev RecordsChanged
	if err := json.Unmarshal(m.Data, &ev); err != nil {
		return RecordsChanged{}, fmt.Errorf("decoding %s event: %w", m.Topic, err)
	}
	return ev, nil
}

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers messages on the returned channel.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan Message, func(), error)
	Close() error
}
