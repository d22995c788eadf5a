package config

import (
	"reflect"
	"testing"
)

func TestParseEndpoint(t *testing.T) {
	for _, expected := range []Endpoint{
		{Original: "tcp://0.0.0.0:10025", Scheme: "tcp", Host: "0.0.0.0", Port: "10025"},
		{Original: "tcp://[::]:10025", Scheme: "tcp", Host: "::", Port: "10025"},
		{Original: "tcp:127.0.0.1:10025", Scheme: "tcp", Host: "127.0.0.1", Port: "10025"},
		{Original: "unix://path", Scheme: "unix", Path: "path"},
		{Original: "unix:path", Scheme: "unix", Path: "path"},
		{Original: "unix:/path", Scheme: "unix", Path: "/path"},
		{Original: "unix:///path", Scheme: "unix", Path: "/path"},
	} {
		actual, err := ParseEndpoint(expected.Original)
		if err != nil {
			t.Errorf("unexpected failure for %s: %v", expected.Original, err)
			continue
		}
		if !reflect.DeepEqual(expected, actual) {
			t.Errorf("ParseEndpoint(%q) = %#v, want %#v", expected.Original, actual, expected)
		}
	}
}

func TestParseEndpointRejectsUnknownScheme(t *testing.T) {
	if _, err := ParseEndpoint("tls://0.0.0.0:10025"); err == nil {
		t.Fatal("expected an error for an unsupported scheme")
	}
}
