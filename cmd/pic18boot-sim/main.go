// Command pic18boot-sim runs a hosted virtual bootloader device: it listens
// on a TCP port, serves each accepted connection in its own goroutine with
// a fresh simulated device, and drives bootloader.Driver against a
// simnvm.Provider and simplatform.Facade the
// same way real silicon would drive it against register-level primitives.
// It exists so the protocol, command handlers, and host CLI can all be
// exercised end-to-end without hardware, mirroring the way the teacher
// repo's main.go is the single process that wires config, telemetry, and
// the device loop together.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"boardworks/pic18boot/bootloader"
	"boardworks/pic18boot/config"
	"boardworks/pic18boot/nvm"
	"boardworks/pic18boot/nvm/simnvm"
	"boardworks/pic18boot/platform/simplatform"
	"boardworks/pic18boot/telemetry"
	"boardworks/pic18boot/telemetry/beacon"
	"boardworks/pic18boot/transport/tcpstream"
)

func main() {
	addr := flag.String("listen", "127.0.0.1:6900", "address to listen on")
	forceEntry := flag.Bool("force-entry", true, "hold the simulated entry pin low so the command loop always runs")
	flag.Parse()

	log := slog.New(telemetry.NewHandler(slog.NewTextHandler(os.Stderr, nil), dialBeacon()))
	slog.SetDefault(log)

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pic18boot-sim: listen: %v\n", err)
		os.Exit(1)
	}
	defer ln.Close()
	log.Info("sim:listening", "addr", *addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("sim:accept_error", "err", err)
			continue
		}
		go serveSession(ctx, conn, *forceEntry, log)
	}
}

func serveSession(ctx context.Context, conn net.Conn, forceEntry bool, log *slog.Logger) {
	defer conn.Close()
	log = log.With("peer", conn.RemoteAddr().String())
	log.Info("session:start")
	defer log.Info("session:end")
	defer func() {
		if r := recover(); r != nil {
			log.Error("session:panic", "err", r)
		}
	}()

	m := nvm.DefaultMemoryMap
	p := simnvm.New(m)
	plat := simplatform.New()
	plat.ForceEntry = forceEntry

	stream := tcpstream.New(conn)
	d := bootloader.New(p, plat, stream, m, config.UnlockKey(), log)
	d.Run(ctx)
}

func dialBeacon() telemetry.Notifier {
	addr, ok := config.BeaconBrokerAddr()
	if !ok {
		return nil
	}
	b, err := beacon.Dial(context.Background(), addr.String(), config.BeaconClientID(), config.BeaconTopic())
	if err != nil {
		slog.Warn("beacon:dial_failed", "err", err)
		return nil
	}
	return b
}
