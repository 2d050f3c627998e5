package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/blesnip/leaudio-snippet/internal/discovery"
	"github.com/blesnip/leaudio-snippet/internal/log"
	"github.com/blesnip/leaudio-snippet/pkg/cli"
	"github.com/blesnip/leaudio-snippet/pkg/connector/ble"
	"github.com/blesnip/leaudio-snippet/pkg/event"
	"github.com/blesnip/leaudio-snippet/pkg/gatt"
	"github.com/blesnip/leaudio-snippet/pkg/leaudio"
	"github.com/blesnip/leaudio-snippet/pkg/snippet"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	EnvInstance = "LEAUDIO_INSTANCE"
	EnvVerbose  = "LEAUDIO_VERBOSE"
)

const nonLocalhostWarning = `
The snippet server does not authenticate clients. Any host that can reach the listening address can
connect to Bluetooth devices and play audio on this machine.`

type SnippetServerConfig struct {
	instance string
	verbose  bool
}

var (
	serverConfig = &SnippetServerConfig{}
)

func init() {
	flag.StringVar(&serverConfig.instance, "instance", "", "mDNS instance `name`. Defaults to $LEAUDIO_INSTANCE or the hostname.")
	flag.BoolVar(&serverConfig.verbose, "verbose", false, "Enable verbose logging")
}

func Usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [OPTION...]\n", os.Args[0])
	fmt.Fprintf(out, "\nA Mobly snippet server that drives an LE Audio peripheral over Bluetooth LE")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, nonLocalhostWarning)
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	flag.PrintDefaults()
}

// readFromEnvironment applies configuration from environment variables.
// Values are not overwritten.
func readFromEnvironment() {
	if serverConfig.instance == "" {
		serverConfig.instance = os.Getenv(EnvInstance)
	}
	if serverConfig.instance == "" {
		if hostname, err := os.Hostname(); err == nil {
			serverConfig.instance = hostname
		}
	}
	if !serverConfig.verbose {
		if verbose, ok := os.LookupEnv(EnvVerbose); ok {
			serverConfig.verbose = verbose != "false" && verbose != "0"
		}
	}
}

func isLoopback(address string) bool {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func main() {
	config, err := cli.NewConfig(cli.FlagAll)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %s\n", err)
		os.Exit(1)
	}

	defer func() {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
	}()

	flag.Usage = Usage
	config.RegisterCommandLineFlags()
	flag.Parse()
	readFromEnvironment()
	if serverConfig.verbose {
		config.Verbose = true
	}
	if err = config.Load(); err != nil {
		return
	}

	if !isLoopback(config.ListenAddress) {
		fmt.Fprintln(os.Stderr, nonLocalhostWarning)
	}

	adapter, err := config.NewAdapter()
	if err != nil {
		err = errors.New(ble.AdapterErrorHelpMessage(err))
		return
	}
	defer adapter.Close()

	player, err := config.NewPlayer()
	if err != nil {
		return
	}

	connector := gatt.NewConnector(adapter)
	connector.ConnectTimeout = config.ConnectTimeout
	defer connector.Close()

	events := event.NewCache()
	leAudio := leaudio.New(connector, player, events)

	log.Debug("Creating snippet server")
	server, err := snippet.NewServer(events, leAudio)
	if err != nil {
		return
	}
	server.Timeout = config.RPCTimeout

	listener, err := net.Listen("tcp", config.ListenAddress)
	if err != nil {
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			log.Info("Shutting down...")
		case <-server.Done():
		}
		server.Close()
	}()

	if config.Announce {
		port := listener.Addr().(*net.TCPAddr).Port
		info := discovery.Info{Snippet: "leaudio", Version: version, Backend: string(config.Backend)}
		go func() {
			if err := discovery.Advertise(ctx, serverConfig.instance, port, info); err != nil {
				log.Warning("Failed to advertise server: %s", err)
			}
		}()
	}

	// The Mobly client reads the port from the first line of output.
	fmt.Printf("SNIPPET START, PROTOCOL 1 0\nSNIPPET SERVING, PORT %d\n", listener.Addr().(*net.TCPAddr).Port)
	serveErr := server.Serve(listener)
	// Close is idempotent and waits for a concurrent Close, so media is stopped before exit.
	server.Close()
	if !errors.Is(serveErr, snippet.ErrServerClosed) {
		err = serveErr
		return
	}
	cancel()
	log.Info("Server stopped")
}
