// ABOUTME: Multicast group socket setup for RTP reception
// ABOUTME: Binds the wildcard port and joins the group on all interfaces
package stream

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

const (
	// kernelReadBufferSize is the socket receive buffer requested from
	// the kernel, sized like common RTSP servers to ride out scheduling
	// stalls.
	kernelReadBufferSize = 0x80000

	// multicastTTL matches what RTSP tooling uses for sent multicast
	// traffic.
	multicastTTL = 16
)

// OpenMulticast binds a UDP socket on the wildcard address and joins the
// group on every multicast-capable interface that is up; interfaces that
// refuse the join are skipped. When no interface accepts, the
// system-default join is tried before giving up. Closing the returned
// conn drops all group memberships.
func OpenMulticast(group net.IP, port int) (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, fmt.Errorf("bind UDP port %d: %w", port, err)
	}

	pconn := ipv4.NewPacketConn(conn)

	intfs, err := net.Interfaces()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	joined := 0
	for _, intf := range intfs {
		if intf.Flags&net.FlagMulticast == 0 || intf.Flags&net.FlagUp == 0 {
			continue
		}
		cintf := intf
		if err := pconn.JoinGroup(&cintf, &net.UDPAddr{IP: group}); err != nil {
			continue
		}
		joined++
	}

	if joined == 0 {
		if err := pconn.JoinGroup(nil, &net.UDPAddr{IP: group}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("join group %s: %w", group, err)
		}
	}

	// Same-host senders should be heard too.
	pconn.SetMulticastLoopback(true)

	return conn, nil
}
