// Package discovery advertises the stream endpoint on the local network
// via mDNS, so LAN clients can find the daemon without configuration.
package discovery

import (
	"fmt"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// mDNS service parameters.
const (
	// ServiceType is the mDNS service type for the stream endpoint.
	ServiceType = "_pulsefeed._tcp"

	// Domain is the mDNS domain.
	Domain = "local."
)

// Advertiser announces the stream endpoint over mDNS.
type Advertiser struct {
	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser creates an idle advertiser.
func NewAdvertiser() *Advertiser {
	return &Advertiser{}
}

// Advertise starts announcing the endpoint under the given instance name.
// TXT records carry the stream path so clients need no further probing.
// A second call replaces the previous announcement.
func (a *Advertiser) Advertise(instance string, port int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	txt := []string{
		"path=/streams",
		"proto=sse",
	}

	// nil interfaces means all interfaces.
	server, err := zeroconf.Register(instance, ServiceType, Domain, port, txt, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	a.server = server
	return nil
}

// Shutdown stops the announcement. Safe to call without a prior Advertise.
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}
