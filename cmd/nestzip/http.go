package main

import (
	nethttp "net/http"
	"time"
)

// newHTTPClient returns the client remote root archives are read with.
// Each range request, body included, must finish within timeout; zero
// disables the limit.
func newHTTPClient(timeout time.Duration) *nethttp.Client {
	transport := nethttp.DefaultTransport
	if base, ok := transport.(*nethttp.Transport); ok {
		transport = base.Clone()
	}
	return &nethttp.Client{Transport: transport, Timeout: timeout}
}
