package redis

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/aretw0/tsw/pkg/domain"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("redis: CBOR encoder initialization failed: " + err.Error())
	}

	// Unknown fields are ignored so older and newer processes can share a channel.
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("redis: CBOR decoder initialization failed: " + err.Error())
	}
}

// envelope is the wire format of every message published by this package.
// Struct fields without cbor tags use their json tags.
type envelope struct {
	Origin   string           `cbor:"origin"`
	Instance *domain.Instance `cbor:"instance,omitempty"`
	Event    *domain.Event    `cbor:"event,omitempty"`
}

func encode(e *envelope) ([]byte, error) {
	b, err := encMode.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return b, nil
}

func decode(data []byte) (*envelope, error) {
	var e envelope
	if err := decMode.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	return &e, nil
}
