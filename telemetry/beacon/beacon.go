// Package beacon is the optional fleet boot-telemetry side channel: it
// publishes entry-decision and error events over MQTT but never
// participates in the frame protocol, never gates a command, and has no
// read path back into the driver. It is grounded on the teacher's
// mqtt.go, which drives github.com/soypat/natiu-mqtt over a TCP
// connection; here the connection is a hosted net.Conn (the host
// programmer or simulator runs on a real OS) rather than the teacher's
// tinygo network stack, but the client calls are the same.
package beacon

import (
	"context"
	"errors"
	"net"
	"time"

	mqtt "github.com/soypat/natiu-mqtt"

	"boardworks/pic18boot/telemetry"
)

const (
	dialTimeout = 5 * time.Second
	userBufSize = 512
)

// Beacon publishes telemetry.Notify calls to a single MQTT topic. It is
// strictly fire-and-forget: Notify discards any publish error, so a failure
// is never reported back to the bootloader loop that owns the Notifier
// interface.
type Beacon struct {
	addr     string
	clientID string
	topic    string

	client  *mqtt.Client
	conn    net.Conn
	userBuf [userBufSize]byte
}

// Dial connects to the broker at addr and completes the MQTT CONNECT
// handshake. The caller should treat a non-nil error as "beacon disabled
// this session" rather than fatal.
func Dial(ctx context.Context, addr, clientID, topic string) (*Beacon, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, err
	}

	b := &Beacon{addr: addr, clientID: clientID, topic: topic, conn: conn}

	cfg := mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: b.userBuf[:]},
	}
	b.client = mqtt.NewClient(cfg)

	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte(clientID))

	conn.SetDeadline(time.Now().Add(dialTimeout))
	if err := b.client.StartConnect(conn, &varconn); err != nil {
		conn.Close()
		return nil, err
	}

	deadline, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	for !b.client.IsConnected() {
		if deadline.Err() != nil {
			conn.Close()
			return nil, deadline.Err()
		}
		if err := b.client.HandleNext(); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return b, nil
}

// Notify implements telemetry.Notifier by publishing a compact event line.
// Errors are swallowed on purpose: a beacon hiccup must never feed back
// into the core command loop (spec.md's external-collaborator boundary
// applies just as strictly to this optional side channel).
func (b *Beacon) Notify(sev telemetry.Severity, msg string) {
	b.conn.SetDeadline(time.Now().Add(dialTimeout))
	pubFlags, _ := mqtt.NewPublishFlags(mqtt.QoS0, false, false)
	pubVar := mqtt.VariablesPublish{
		TopicName: []byte(b.topic),
	}
	_ = b.client.PublishPayload(pubFlags, pubVar, []byte(msg))
}

// Close disconnects and closes the underlying connection.
func (b *Beacon) Close() error {
	b.client.Disconnect(errors.New("beacon: session complete"))
	return b.conn.Close()
}
