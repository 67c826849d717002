package protocol

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/adamgarcia4/goLearning/remotesvc/identity"
)

// encMode uses Core Deterministic Encoding so the same message always
// produces the same bytes.
var encMode cbor.EncMode

// decMode decodes untyped maps as map[string]any. Untyped integers
// decode as uint64 when non-negative and int64 otherwise.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
}

// Envelope is the unit carried by a transport: the sender plus one
// tagged message body.
type Envelope struct {
	Kind Kind            `cbor:"k"`
	From identity.PeerID `cbor:"f"`
	Body cbor.RawMessage `cbor:"b"`
}

// Encode serializes msg sent by from.
func Encode(from identity.PeerID, msg Message) ([]byte, error) {
	if msg == nil || reflect.ValueOf(msg).IsNil() {
		return nil, ErrNilMessage
	}
	if !from.Valid() {
		return nil, ErrMissingPeer
	}

	body, err := encMode.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s body: %v", ErrUnencodable, msg.Kind(), err)
	}

	data, err := encMode.Marshal(Envelope{Kind: msg.Kind(), From: from, Body: body})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses an envelope produced by Encode.
func Decode(data []byte) (identity.PeerID, Message, error) {
	var env Envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("%w: envelope: %v", ErrMalformed, err)
	}
	if !env.From.Valid() {
		return "", nil, ErrMissingPeer
	}

	var msg Message
	switch env.Kind {
	case KindRegistrySnapshot:
		msg = &RegistrySnapshot{}
	case KindRequest:
		msg = &Request{}
	case KindResponse:
		msg = &Response{}
	default:
		return "", nil, fmt.Errorf("%w: %d", ErrUnknownKind, env.Kind)
	}

	if err := decMode.Unmarshal(env.Body, msg); err != nil {
		return "", nil, fmt.Errorf("%w: %s body: %v", ErrMalformed, env.Kind, err)
	}
	if err := validate(msg); err != nil {
		return "", nil, err
	}
	return env.From, msg, nil
}

func validate(msg Message) error {
	switch m := msg.(type) {
	case *RegistrySnapshot:
		if !m.Snapshot.Owner.Valid() {
			return fmt.Errorf("%w: snapshot has no owner", ErrMalformed)
		}
	case *Request:
		if !m.Originator.Valid() {
			return fmt.Errorf("%w: request has no originator", ErrMalformed)
		}
		if m.Method == "" {
			return fmt.Errorf("%w: request has no method", ErrMalformed)
		}
	case *Response:
		if m.Fault != nil && m.Fault.Code == "" {
			return fmt.Errorf("%w: fault has no code", ErrMalformed)
		}
	}
	return nil
}
