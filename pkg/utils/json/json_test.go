package json

import (
	"bytes"
	"strings"
	"testing"
)

type sample struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

func TestMarshalUnmarshal(t *testing.T) {
	in := sample{ID: 1, Name: "test", Message: "hello world"}

	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var out sample
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestUnmarshalInvalid(t *testing.T) {
	var out sample
	if err := Unmarshal([]byte("{not json"), &out); err == nil {
		t.Error("Unmarshal() of invalid input should fail")
	}
}

func TestEncoderDecoder(t *testing.T) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(sample{ID: 2, Name: "enc"}); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"enc"`) {
		t.Errorf("encoded output missing field: %s", buf.String())
	}

	var out sample
	if err := NewDecoder(&buf).Decode(&out); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if out.ID != 2 || out.Name != "enc" {
		t.Errorf("decoded = %+v", out)
	}
}
