// Package discovery advertises snippet servers over mDNS/DNS-SD and finds them again from the
// shell.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"

	"github.com/blesnip/leaudio-snippet/internal/log"
)

const (
	ServiceType = "_mobly-snippet._tcp"
	Domain      = "local."
)

// Info is published in the service's TXT record.
type Info struct {
	Snippet string
	Version string
	Backend string
}

func (i Info) records() []string {
	records := []string{"snippet=" + i.Snippet}
	if i.Version != "" {
		records = append(records, "version="+i.Version)
	}
	if i.Backend != "" {
		records = append(records, "backend="+i.Backend)
	}
	return records
}

func parseRecords(txt []string) Info {
	m := make(map[string]string, len(txt))
	for _, t := range txt {
		if key, value, ok := strings.Cut(t, "="); ok {
			m[key] = value
		}
	}
	return Info{Snippet: m["snippet"], Version: m["version"], Backend: m["backend"]}
}

// Advertise registers the server listening on port under the given instance name. It blocks until
// ctx is cancelled.
func Advertise(ctx context.Context, instance string, port int, info Info) error {
	server, err := zeroconf.Register(instance, ServiceType, Domain, port, info.records(), nil)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}
	log.Info("Advertising %s on port %d over mDNS", instance, port)
	<-ctx.Done()
	server.Shutdown()
	return nil
}

// Server is a snippet server found on the network.
type Server struct {
	Instance string
	Address  string
	Info     Info
}

func entryToServer(entry *zeroconf.ServiceEntry) (Server, bool) {
	var host net.IP
	if len(entry.AddrIPv4) > 0 {
		host = entry.AddrIPv4[0]
	} else if len(entry.AddrIPv6) > 0 {
		host = entry.AddrIPv6[0]
	} else {
		return Server{}, false
	}
	return Server{
		Instance: entry.Instance,
		Address:  net.JoinHostPort(host.String(), strconv.Itoa(entry.Port)),
		Info:     parseRecords(entry.Text),
	}, true
}

// Browse collects servers until ctx expires. Callers should bound ctx with a timeout.
func Browse(ctx context.Context) ([]Server, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan []Server)
	go func() {
		var servers []Server
		for entry := range entries {
			if server, ok := entryToServer(entry); ok {
				log.Debug("Found snippet server %s at %s", server.Instance, server.Address)
				servers = append(servers, server)
			}
		}
		found <- servers
	}()

	if err := resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}
	<-ctx.Done()
	servers := <-found
	sort.Slice(servers, func(i, j int) bool { return servers[i].Instance < servers[j].Instance })
	return servers, nil
}
