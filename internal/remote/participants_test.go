package remote

import (
	"reflect"
	"testing"
)

func TestEncodeParticipants(t *testing.T) {
	got := EncodeParticipants([]string{"u1", "u2"})
	want := map[string]bool{"u1": true, "u2": true}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDecodeParticipants(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want []string
	}{
		{"string slice keeps order", []string{"u2", "u1"}, []string{"u2", "u1"}},
		{"any slice keeps order", []any{"u2", "u1", 3}, []string{"u2", "u1"}},
		{"bool map sorted", map[string]bool{"u2": true, "u1": true, "u3": false}, []string{"u1", "u2"}},
		{"any map sorted", map[string]any{"u2": true, "u1": true, "u3": "y"}, []string{"u1", "u2"}},
		{"unknown shape", 42, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DecodeParticipants(tc.in); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParticipantsRoundTrip(t *testing.T) {
	in := []string{"u1", "u2", "u3"}
	if got := DecodeParticipants(EncodeParticipants(in)); !reflect.DeepEqual(got, in) {
		t.Fatalf("round trip corrupted the set: %v", got)
	}
}
