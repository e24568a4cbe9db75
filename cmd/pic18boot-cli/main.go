// Command pic18boot-cli is the host programmer tool: it dials a device
// (real or cmd/pic18boot-sim) over TCP and drives client.Client to read,
// write, and erase flash, EEPROM, and config memory, and to query version
// and checksum. Flag parsing, .env loading, and unlock-key resolution
// follow the teacher's cmd/cli/main.go (host, password, interactive mode),
// adapted from a telnet console session to the framed binary protocol.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"

	"boardworks/pic18boot/client"
	"boardworks/pic18boot/config"
	"boardworks/pic18boot/nvm"
	"boardworks/pic18boot/transport/tcpstream"
)

const defaultDialTimeout = 5 * time.Second

func main() {
	loadEnvFile()

	host := flag.String("host", "", "device address, host:port (required)")
	unlockKeyFlag := flag.String("unlock-key", "", "16-bit unlock key in hex, e.g. AA55 (or PIC18BOOT_UNLOCK_KEY env var)")
	cmd := flag.String("cmd", "", "command to run: version, read, write, erase, read-ee, write-ee, read-config, write-config, checksum, reset, inspect")
	addrFlag := flag.String("addr", "0x3000", "target address (hex, e.g. 0x3000)")
	lengthFlag := flag.Int("length", 16, "byte count for read/checksum, page count for erase")
	fileFlag := flag.String("file", "", "file path for write commands (raw bytes)")
	copyChecksum := flag.Bool("copy-checksum", false, "copy the checksum command's result to the system clipboard")
	flag.Parse()

	if *host == "" {
		printUsage()
		os.Exit(1)
	}

	unlockKey := resolveUnlockKey(*unlockKeyFlag)

	conn, err := net.DialTimeout("tcp", *host, defaultDialTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pic18boot-cli: connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	m := nvm.DefaultMemoryMap
	c := client.New(tcpstream.New(conn), unlockKey, m.FrameDataCap)

	addr, err := parseHexUint32(*addrFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pic18boot-cli: bad -addr: %v\n", err)
		os.Exit(1)
	}

	if err := run(c, *cmd, addr, *lengthFlag, *fileFlag, *copyChecksum); err != nil {
		fmt.Fprintf(os.Stderr, "pic18boot-cli: %v\n", err)
		os.Exit(1)
	}
}

func run(c *client.Client, cmd string, addr uint32, length int, file string, copyChecksum bool) error {
	switch cmd {
	case "version":
		v, err := c.ReadVersion()
		if err != nil {
			return err
		}
		fmt.Printf("firmware %d.%d  max-packet=%d  device-id=%#04x  page-size=%d  user-id=%x\n",
			v.Major, v.Minor, v.MaxPacketSize, v.DeviceID, v.PageSize, v.UserID)
		return nil

	case "read":
		data, err := c.ReadFlash(addr, length)
		if err != nil {
			return err
		}
		return writeOutput(file, data)

	case "inspect":
		data, err := c.ReadFlash(addr, length)
		if err != nil {
			return err
		}
		return runInspect(addr, data)

	case "write":
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read firmware file: %w", err)
		}
		return c.WriteFlash(addr, data)

	case "erase":
		return c.EraseFlash(addr, uint16(length))

	case "read-ee":
		data, err := c.ReadEEPROM(addr, length)
		if err != nil {
			return err
		}
		return writeOutput(file, data)

	case "write-ee":
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read EEPROM file: %w", err)
		}
		return c.WriteEEPROM(addr, data)

	case "read-config":
		data, err := c.ReadConfig(addr, length)
		if err != nil {
			return err
		}
		return writeOutput(file, data)

	case "write-config":
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		return c.WriteConfig(addr, data)

	case "checksum":
		sum, err := c.Checksum(addr, uint32(length), false)
		if err != nil {
			return err
		}
		text := fmt.Sprintf("%#04x", sum)
		fmt.Printf("checksum = %s\n", text)
		if copyChecksum {
			copyToClipboard(text)
		}
		return nil

	case "reset":
		return c.Reset()

	default:
		printUsage()
		return fmt.Errorf("unknown -cmd %q", cmd)
	}
}

func writeOutput(file string, data []byte) error {
	if file == "" {
		fmt.Printf("%x\n", data)
		return nil
	}
	return os.WriteFile(file, data, 0o644)
}

func printUsage() {
	fmt.Println("pic18boot-cli")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  pic18boot-cli -host <ip:port> -cmd <command> [-addr 0x3000] [-length N] [-file path]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  version, read, write, erase, read-ee, write-ee, read-config, write-config, checksum, reset, inspect")
	fmt.Println()
	fmt.Println("Unlock key resolution (highest priority first):")
	fmt.Println("  -unlock-key flag, PIC18BOOT_UNLOCK_KEY env var, .env file, interactive prompt")
}

// loadEnvFile loads KEY=VALUE pairs from .env into the process environment,
// the same minimal parser the teacher's cmd/cli uses.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// resolveUnlockKey follows flag > env > interactive prompt > device default.
func resolveUnlockKey(flagValue string) uint16 {
	if flagValue != "" {
		if n, err := strconv.ParseUint(flagValue, 16, 16); err == nil {
			return uint16(n)
		}
	}
	if envValue := os.Getenv("PIC18BOOT_UNLOCK_KEY"); envValue != "" {
		if n, err := strconv.ParseUint(envValue, 16, 16); err == nil {
			return uint16(n)
		}
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print("Unlock key (hex, blank for default): ")
		line, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err == nil && len(line) > 0 {
			if n, err := strconv.ParseUint(strings.TrimSpace(string(line)), 16, 16); err == nil {
				return uint16(n)
			}
		}
	}
	return config.UnlockKey()
}

func parseHexUint32(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	n, err := strconv.ParseUint(s, 16, 32)
	return uint32(n), err
}
