// Copyright 2025 James Ross
package queue

import "testing"

func TestNewJob(t *testing.T) {
	j := NewJob("sms", "q1", "j1", []byte("hello"))
	if j.QueueType != "sms" || j.QueueID != "q1" || j.JobID != "j1" {
		t.Fatalf("unexpected job fields: %#v", j)
	}
	if string(j.Payload) != "hello" {
		t.Fatalf("unexpected payload: %q", j.Payload)
	}
}

func TestJSONCodecRoundTrip(t *testing.T) {
	c := JSONCodec{}
	type sample struct {
		Name string
		N    int
	}
	in := sample{Name: "hello", N: 42}
	b, err := c.Serialize(in)
	if err != nil {
		t.Fatal(err)
	}
	var out sample
	if err := c.Deserialize(b, &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Fatalf("roundtrip mismatch: %#v vs %#v", in, out)
	}
}

func TestJSONCodecBadArgument(t *testing.T) {
	c := JSONCodec{}
	_, err := c.Serialize(func() {})
	if err == nil {
		t.Fatal("expected error serializing an unserializable value")
	}
	var bae *BadArgumentError
	if _, ok := err.(*BadArgumentError); !ok {
		t.Fatalf("expected *BadArgumentError, got %T (%v)", err, bae)
	}
}
