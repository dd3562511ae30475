package busclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/enbility/zeroconf/v3"
)

// mDNS service parameters for GridConnect hubs.
const (
	// ServiceTypeHub is the service type OpenLCB hubs advertise.
	ServiceTypeHub = "_openlcb-can._tcp"

	// Domain is the mDNS search domain.
	Domain = "local."
)

// ErrNoHubFound indicates the browse finished without a usable hub.
var ErrNoHubFound = errors.New("no gridconnect hub found")

// Hub describes a discovered GridConnect hub.
type Hub struct {
	// InstanceName is the advertised service instance.
	InstanceName string

	// Host is the advertised hostname.
	Host string

	// Port is the hub's TCP port.
	Port uint16

	// Addresses are the resolved IP addresses, IPv4 first.
	Addresses []string
}

// Addr returns a dialable "host:port" address, preferring a resolved
// IP over the mDNS hostname.
func (h Hub) Addr() string {
	host := h.Host
	if len(h.Addresses) > 0 {
		host = h.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(int(h.Port)))
}

// FindHub browses the local network and returns the first advertised
// hub. The context bounds the search; a context without deadline
// blocks until a hub appears or the context is cancelled.
func FindHub(ctx context.Context) (Hub, error) {
	hubs, err := BrowseHubs(ctx)
	if err != nil {
		return Hub{}, err
	}

	select {
	case hub, ok := <-hubs:
		if !ok {
			return Hub{}, ErrNoHubFound
		}
		return hub, nil
	case <-ctx.Done():
		return Hub{}, fmt.Errorf("%w: %v", ErrNoHubFound, ctx.Err())
	}
}

// BrowseHubs streams hubs as they are discovered. The channel closes
// when the context ends.
func BrowseHubs(ctx context.Context) (<-chan Hub, error) {
	out := make(chan Hub)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				hub := entryToHub(entry)
				if hub.Port == 0 {
					continue
				}
				select {
				case out <- hub:
				case <-ctx.Done():
					return
				}
			case _, ok := <-removed:
				// Hubs that disappear are simply not re-emitted.
				if !ok {
					continue
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceTypeHub, Domain, entries, removed)
	}()

	return out, nil
}

// entryToHub converts a zeroconf entry to a Hub.
func entryToHub(entry *zeroconf.ServiceEntry) Hub {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return Hub{
		InstanceName: entry.Instance,
		Host:         entry.HostName,
		Port:         uint16(entry.Port),
		Addresses:    addrs,
	}
}
