package config

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"
)

// RuntimeDirectory is joined onto relative unix:// paths found in listener
// addresses. cmd/postald sets it from the -runtime-dir flag before parsing
// any config.
var RuntimeDirectory string

// Endpoint is a parsed listener address: tcp://host:port or unix://path.
// Original is kept verbatim for error messages and round-tripping.
type Endpoint struct {
	Original, Scheme, Host, Port, Path string
}

func (e Endpoint) String() string {
	if e.Original != "" {
		return e.Original
	}

	if e.Scheme == "unix" {
		return "unix://" + e.Path
	}

	host := e.Host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	s := e.Scheme + "://" + host
	if e.Port != "" {
		s += ":" + e.Port
	}
	return s
}

func (e Endpoint) Network() string {
	if e.Scheme == "unix" {
		return "unix"
	}
	return "tcp"
}

func (e Endpoint) Address() string {
	if e.Scheme == "unix" {
		return e.Path
	}
	return net.JoinHostPort(e.Host, e.Port)
}

// ParseEndpoint parses a tcp://host:port or unix://path listener address.
func ParseEndpoint(str string) (Endpoint, error) {
	u, err := url.Parse(str)
	if err != nil {
		return Endpoint{}, err
	}

	switch u.Scheme {
	case "tcp":
		if u.Host == "" && u.Opaque != "" {
			u.Host = u.Opaque
		}
	case "unix":
		if u.Path == "" && u.Opaque != "" {
			u.Path = u.Opaque
		}

		actualPath := u.Host + u.Path
		if !filepath.IsAbs(actualPath) {
			actualPath = filepath.Join(RuntimeDirectory, actualPath)
		}
		return Endpoint{Original: str, Scheme: "unix", Path: actualPath}, nil
	default:
		return Endpoint{}, fmt.Errorf("unsupported endpoint scheme: %s", u.Scheme)
	}

	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		host, port, err = net.SplitHostPort(u.Host + ":")
		if err != nil {
			host = u.Host
		}
	}
	if port == "" {
		return Endpoint{}, fmt.Errorf("port is required in %s", str)
	}

	return Endpoint{Original: str, Scheme: "tcp", Host: host, Port: port}, nil
}
