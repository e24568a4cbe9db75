// Package config holds build-time configuration the way the teacher repo's
// config package does: compiled-in defaults, overridable by dropping a
// non-empty value into the corresponding embedded text file before
// building. Nothing here is read at runtime from the filesystem — the
// override is baked into the binary at compile time via go:embed, matching
// the teacher's broker.text/wake_interval.text pattern.
package config

import (
	_ "embed"
	"net/netip"
	"strconv"
	"strings"
)

// Defaults for operational configuration. Overridable by the corresponding
// .text file below.
const (
	DefaultUnlockKey   uint16 = 0xAA55
	DefaultBeaconTopic        = "pic18boot/entry"
)

// Optional overrides (empty file = use default).
var (
	//go:embed unlock_key.text
	unlockKeyOverride string

	//go:embed beacon_broker.text
	beaconBrokerOverride string

	//go:embed beacon_client_id.text
	beaconClientIDOverride string

	//go:embed beacon_topic.text
	beaconTopicOverride string

	//go:embed console_password.text
	consolePasswordOverride string
)

// UnlockKey returns the 16-bit NVM unlock key, parsed as hex (e.g. "AA55")
// from unlock_key.text, or DefaultUnlockKey if the file is empty or
// unparsable.
func UnlockKey() uint16 {
	v := strings.TrimSpace(unlockKeyOverride)
	if v == "" {
		return DefaultUnlockKey
	}
	n, err := strconv.ParseUint(v, 16, 16)
	if err != nil {
		return DefaultUnlockKey
	}
	return uint16(n)
}

// BeaconBrokerAddr returns the optional fleet boot-telemetry beacon's MQTT
// broker address, an IP literal with port ("ip:port"). The second return is
// false when no broker is configured or the value does not parse (a host
// name is not accepted) — the beacon is disabled in that case, never a
// fatal error.
func BeaconBrokerAddr() (netip.AddrPort, bool) {
	v := strings.TrimSpace(beaconBrokerOverride)
	if v == "" {
		return netip.AddrPort{}, false
	}
	addr, err := netip.ParseAddrPort(v)
	if err != nil {
		return netip.AddrPort{}, false
	}
	return addr, true
}

// BeaconClientID returns the MQTT client ID the beacon publishes under.
func BeaconClientID() string {
	v := strings.TrimSpace(beaconClientIDOverride)
	if v == "" {
		return "pic18boot-beacon"
	}
	return v
}

// BeaconTopic returns the topic the beacon publishes entry/error events to.
func BeaconTopic() string {
	v := strings.TrimSpace(beaconTopicOverride)
	if v == "" {
		return DefaultBeaconTopic
	}
	return v
}

// ConsolePassword returns the optional inspect-console password. Empty
// means the console (if built) requires no authentication.
//
// Deprecated: a secret baked into the binary at compile time offers no real
// confidentiality; kept for parity with the teacher's credentials package,
// which carries the same caveat on its embedded secrets.
func ConsolePassword() string {
	return strings.TrimSpace(consolePasswordOverride)
}
