package wire

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Update is the envelope for one payload delivered to one subscription.
type Update struct {
	// Category is the numeric state category of the subscription.
	Category uint8 `cbor:"1,keyasint"`

	// Entity is the tracked entity identifier.
	Entity string `cbor:"2,keyasint"`

	// Cycle is the broadcast cycle counter that produced this update.
	// Zero for the priming snapshot sent at registration.
	Cycle uint64 `cbor:"3,keyasint,omitempty"`

	// Priming marks the initial snapshot sent during registration, before
	// the subscription entered the periodic cycle.
	Priming bool `cbor:"4,keyasint,omitempty"`

	// Timestamp is when the update was produced.
	Timestamp time.Time `cbor:"5,keyasint"`

	// Data is the filtered, serialized view produced by the subscription's
	// state category. Opaque to the envelope.
	Data []byte `cbor:"6,keyasint"`
}

// encMode is the CBOR encoder mode for envelopes: deterministic encoding
// with RFC3339Nano timestamps.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for envelopes.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create wire CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create wire CBOR decoder mode: %v", err))
	}
}

// EncodeUpdate encodes an update envelope to CBOR bytes.
func EncodeUpdate(u Update) ([]byte, error) {
	return encMode.Marshal(u)
}

// DecodeUpdate decodes CBOR bytes into an update envelope.
func DecodeUpdate(data []byte) (Update, error) {
	var u Update
	if err := decMode.Unmarshal(data, &u); err != nil {
		return Update{}, err
	}
	return u, nil
}
