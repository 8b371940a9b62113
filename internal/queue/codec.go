// Copyright 2025 James Ross
package queue

import "encoding/json"

// Codec serializes and deserializes client payloads to and from the opaque
// byte token the core stores and returns. deserialize(serialize(x)) == x for
// any x accepted by Serialize.
type Codec interface {
	Serialize(v interface{}) ([]byte, error)
	Deserialize(data []byte, v interface{}) error
}

// JSONCodec is the default convenience codec. It is entirely optional:
// producers are free to hand Enqueue pre-serialized bytes from any codec
// since the core treats the payload as opaque.
type JSONCodec struct{}

func (JSONCodec) Serialize(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, badArgument("payload", "%v", err)
	}
	return b, nil
}

func (JSONCodec) Deserialize(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
