// ABOUTME: SAP listener for session announcements on the well-known group
// ABOUTME: Parses announce and delete messages into stream descriptors
package discovery

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/sdplay/sdplay-go/pkg/sdp"
	"github.com/sdplay/sdplay-go/pkg/stream"
)

const (
	// SAPGroup is the well-known session announcement group.
	SAPGroup = "239.255.255.255"

	// SAPPort is the well-known session announcement port.
	SAPPort = 9875

	// announceChannelDepth buffers parsed announcements toward the
	// consumer.
	announceChannelDepth = 16

	// maxSeenEntries caps the dedupe table; announcements on the shared
	// group arrive forever and deletions are not guaranteed.
	maxSeenEntries = 1024
)

// Announcement is one SAP message. Deleted marks a session going away;
// for those the descriptor may be empty when the deletion carries only
// an origin line.
type Announcement struct {
	// ID is the sender-assigned message hash identifying this version
	// of the session.
	ID uint16

	// Origin is the announcing host.
	Origin net.IP

	// Deleted is true for session deletion messages.
	Deleted bool

	// Raw is the SDP text as announced.
	Raw string

	// Descriptor is the parsed stream, zero when parsing failed on a
	// deletion.
	Descriptor sdp.StreamDescriptor
}

// SAPConfig configures a SAPListener.
type SAPConfig struct {
	// Group and Port override the well-known announcement address.
	// Zero values select 239.255.255.255:9875.
	Group net.IP
	Port  int

	// OnError is invoked once if the listen loop dies on a fatal
	// error. Optional.
	OnError func(error)

	// Log overrides the logger entry. Optional.
	Log *logrus.Entry
}

// SAPListener watches the announcement group and turns messages into
// Announcements. Repeats of an already-seen session are suppressed;
// deletions always come through.
type SAPListener struct {
	cfg SAPConfig
	log *logrus.Entry

	ctx      context.Context
	conn     *net.UDPConn
	announce chan Announcement
	done     chan struct{}

	seen map[string]struct{}
}

// NewSAPListener creates a listener for the announcement group.
func NewSAPListener(cfg SAPConfig) *SAPListener {
	if cfg.Group == nil {
		cfg.Group = net.ParseIP(SAPGroup)
	}
	if cfg.Port == 0 {
		cfg.Port = SAPPort
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithFields(logrus.Fields{
		"group": cfg.Group.String(),
		"port":  cfg.Port,
	})

	return &SAPListener{
		cfg:      cfg,
		log:      log,
		announce: make(chan Announcement, announceChannelDepth),
		done:     make(chan struct{}),
		seen:     make(map[string]struct{}),
	}
}

// Start joins the announcement group and launches the listen loop. The
// loop stops when ctx is canceled; the announcement channel is closed
// when it exits.
func (l *SAPListener) Start(ctx context.Context) error {
	conn, err := stream.OpenMulticast(l.cfg.Group, l.cfg.Port)
	if err != nil {
		return err
	}

	l.ctx = ctx
	l.conn = conn

	go l.watchStop()
	go l.run()

	l.log.Infof("listening for session announcements")
	return nil
}

// Announcements is the stream of deduplicated announcements. It is
// closed when the listen loop exits.
func (l *SAPListener) Announcements() <-chan Announcement {
	return l.announce
}

// Done is closed once the listen loop has fully exited and the socket
// is released.
func (l *SAPListener) Done() <-chan struct{} {
	return l.done
}

func (l *SAPListener) watchStop() {
	select {
	case <-l.ctx.Done():
		l.conn.Close()
	case <-l.done:
	}
}

func (l *SAPListener) run() {
	defer close(l.done)
	defer close(l.announce)
	defer l.conn.Close()

	buf := make([]byte, 8192)
	for {
		n, _, err := l.conn.ReadFrom(buf)
		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			l.log.Errorf("announcement receive: %v", err)
			if l.cfg.OnError != nil {
				l.cfg.OnError(err)
			}
			return
		}

		ann, err := parseSAP(buf[:n])
		if err != nil {
			// The well-known group is shared with other tools; junk
			// is expected and skipped.
			l.log.Debugf("skipping announcement: %v", err)
			continue
		}

		if !l.admit(ann) {
			continue
		}

		select {
		case l.announce <- *ann:
		case <-l.ctx.Done():
			return
		}
	}
}

// admit applies the dedupe policy: the first sight of a session passes,
// periodic repeats do not, and deletions pass while clearing the entry.
func (l *SAPListener) admit(ann *Announcement) bool {
	key := fmt.Sprintf("%s/%d", ann.Origin, ann.ID)

	if ann.Deleted {
		delete(l.seen, key)
		return true
	}
	if _, ok := l.seen[key]; ok {
		return false
	}
	if len(l.seen) >= maxSeenEntries {
		l.seen = make(map[string]struct{})
	}
	l.seen[key] = struct{}{}
	return true
}

// parseSAP decodes one announcement packet. Encrypted and compressed
// payloads are not supported and IPv6 origins are carried through
// as-is; only the SDP payload itself must parse for an announcement to
// be admitted.
func parseSAP(buf []byte) (*Announcement, error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("announcement too short: %d bytes", len(buf))
	}

	flags := buf[0]
	if flags>>5 != 1 {
		return nil, fmt.Errorf("unsupported announcement version %d", flags>>5)
	}
	if flags&0x02 != 0 {
		return nil, fmt.Errorf("encrypted announcement")
	}
	if flags&0x01 != 0 {
		return nil, fmt.Errorf("compressed announcement")
	}
	deleted := flags&0x04 != 0
	ipv6Origin := flags&0x10 != 0

	id := binary.BigEndian.Uint16(buf[2:4])
	authLen := int(buf[1]) * 4

	var origin net.IP
	offset := 4
	if ipv6Origin {
		if len(buf) < 20 {
			return nil, fmt.Errorf("truncated origin")
		}
		origin = net.IP(append([]byte(nil), buf[4:20]...))
		offset = 20
	} else {
		origin = net.IPv4(buf[4], buf[5], buf[6], buf[7])
		offset = 8
	}

	offset += authLen
	if offset > len(buf) {
		return nil, fmt.Errorf("truncated authentication data")
	}

	payload := buf[offset:]

	// The payload type field is optional; when present it is a MIME
	// type terminated by a zero byte. Announcements start at "v=" and
	// deletions may carry just the "o=" line.
	if !bytes.HasPrefix(payload, []byte("v=")) && !bytes.HasPrefix(payload, []byte("o=")) {
		if i := bytes.IndexByte(payload, 0); i >= 0 {
			if mime := string(payload[:i]); mime != "" && mime != "application/sdp" {
				return nil, fmt.Errorf("unsupported payload type %q", mime)
			}
			payload = payload[i+1:]
		}
	}

	ann := &Announcement{
		ID:      id,
		Origin:  origin,
		Deleted: deleted,
		Raw:     string(payload),
	}

	desc, err := sdp.Parse(ann.Raw)
	if err != nil {
		// Deletions often carry just the origin line; everything else
		// must describe a playable stream.
		if !deleted {
			return nil, fmt.Errorf("announced session: %w", err)
		}
		return ann, nil
	}
	ann.Descriptor = desc
	return ann, nil
}
