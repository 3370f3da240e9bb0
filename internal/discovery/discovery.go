package discovery

import (
	"context"
	"errors"
	"log"
	"net"
	"strings"

	"github.com/pion/mdns/v2"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// IsLocalHost reports whether host is an mDNS name
func IsLocalHost(host string) bool {
	return strings.HasSuffix(strings.TrimSuffix(strings.ToLower(host), "."), ".local")
}

func listen() (*ipv4.PacketConn, *ipv6.PacketConn, error) {
	addr4, err := net.ResolveUDPAddr("udp4", mdns.DefaultAddressIPv4)
	if err != nil {
		return nil, nil, err
	}
	l4, err := net.ListenUDP("udp4", addr4)
	if err != nil {
		return nil, nil, err
	}

	var p6 *ipv6.PacketConn
	if addr6, err := net.ResolveUDPAddr("udp6", mdns.DefaultAddressIPv6); err == nil {
		if l6, err := net.ListenUDP("udp6", addr6); err == nil {
			p6 = ipv6.NewPacketConn(l6)
		} else {
			log.Println("MDNS: IPv6 unavailable, continuing with IPv4 only:", err)
		}
	}
	return ipv4.NewPacketConn(l4), p6, nil
}

// Advertise answers mDNS queries for localName until the returned conn is closed
func Advertise(localName string) (*mdns.Conn, error) {
	p4, p6, err := listen()
	if err != nil {
		return nil, err
	}
	conn, err := mdns.Server(p4, p6, &mdns.Config{
		LocalNames: []string{localName},
	})
	if err != nil {
		return nil, err
	}
	log.Printf("MDNS: Advertising %s", localName)
	return conn, nil
}

// Resolve looks up the address of a .local host
func Resolve(ctx context.Context, host string) (string, error) {
	if !IsLocalHost(host) {
		return "", errors.New("not an mDNS host: " + host)
	}
	p4, p6, err := listen()
	if err != nil {
		return "", err
	}
	conn, err := mdns.Server(p4, p6, &mdns.Config{})
	if err != nil {
		return "", err
	}
	defer conn.Close()

	_, addr, err := conn.QueryAddr(ctx, strings.TrimSuffix(host, "."))
	if err != nil {
		return "", err
	}
	return addr.String(), nil
}

// ResolveBroker replaces a .local host in a host[:port] broker address with
// its resolved IP. Other addresses and failed lookups are returned unchanged.
func ResolveBroker(ctx context.Context, broker string) string {
	scheme := ""
	rest := broker
	if i := strings.Index(broker, "://"); i >= 0 {
		scheme, rest = broker[:i+3], broker[i+3:]
	}
	host, port, err := net.SplitHostPort(rest)
	if err != nil {
		host, port = rest, ""
	}
	if !IsLocalHost(host) {
		return broker
	}
	ip, err := Resolve(ctx, host)
	if err != nil {
		log.Printf("MDNS: Failed to resolve %s: %v", host, err)
		return broker
	}
	log.Printf("MDNS: Resolved %s to %s", host, ip)
	if port != "" {
		return scheme + net.JoinHostPort(ip, port)
	}
	return scheme + ip
}
