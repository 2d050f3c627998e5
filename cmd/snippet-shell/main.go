package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/shlex"
	"golang.org/x/term"

	"github.com/blesnip/leaudio-snippet/internal/discovery"
	"github.com/blesnip/leaudio-snippet/pkg/cli"
	"github.com/blesnip/leaudio-snippet/pkg/protocol"
	"github.com/blesnip/leaudio-snippet/pkg/snippet"
)

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

const usage = `
 * Without COMMAND, an interactive shell reads commands from standard input.
 * Any other COMMAND is sent to the server as an RPC. Arguments that parse as JSON (numbers,
   booleans, null, quoted strings, arrays, objects) are sent as such, everything else as a string.`

func Usage() {
	fmt.Printf("Usage: %s [OPTION...] [COMMAND [ARG...]]\n", os.Args[0])
	fmt.Println("")
	fmt.Println(usage)
	fmt.Println("")
	fmt.Printf("Available OPTIONs:\n")
	flag.PrintDefaults()
	fmt.Println("")
	fmt.Printf("Shell COMMANDs:\n")
	printShellCommands()
}

const retryDelay = 500 * time.Millisecond

func runCommand(client *snippet.Client, args []string, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := execute(ctx, client, args, os.Stdout)
	if protocol.ShouldRetry(err) {
		time.Sleep(retryDelay)
		err = execute(ctx, client, args, os.Stdout)
	}
	if err != nil {
		if protocol.MayHaveSucceeded(err) {
			writeErr("Couldn't verify success: %s", err)
		} else {
			writeErr("Failed to execute command: %s", err)
		}
		return 1
	}
	return 0
}

func runInteractiveShell(client *snippet.Client, timeout time.Duration) int {
	prompt := ""
	if term.IsTerminal(int(os.Stdin.Fd())) {
		prompt = "> "
	}
	scanner := bufio.NewScanner(os.Stdin)
	for fmt.Print(prompt); scanner.Scan(); fmt.Print(prompt) {
		args, err := shlex.Split(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			return 0
		}
		if err != nil {
			writeErr("Invalid command: %s", err)
			continue
		}
		runCommand(client, args, timeout)
	}
	if err := scanner.Err(); err != nil {
		writeErr("Error reading command: %s", err)
		return 1
	}
	return 0
}

// findServer returns the address of the first LE Audio snippet server advertised over mDNS.
func findServer(timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	servers, err := discovery.Browse(ctx)
	if err != nil {
		return "", err
	}
	for _, server := range servers {
		if server.Info.Snippet == "leaudio" {
			fmt.Fprintf(os.Stderr, "Using %s (%s, backend %s)\n", server.Address, server.Instance, server.Info.Backend)
			return server.Address, nil
		}
	}
	return "", errors.New("no snippet server found on the local network")
}

func main() {
	status := 1
	defer func() {
		os.Exit(status)
	}()

	var (
		address        string
		discover       bool
		commandTimeout time.Duration
		connTimeout    time.Duration
	)
	config, err := cli.NewConfig(cli.FlagLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %s\n", err)
		return
	}
	flag.Usage = Usage
	flag.StringVar(&address, "addr", "", "Snippet server `address`. Defaults to $LEAUDIO_LISTEN, the config file or "+cli.DefaultListenAddress+".")
	flag.BoolVar(&discover, "discover", false, "Find the snippet server over mDNS")
	flag.DurationVar(&commandTimeout, "command-timeout", 35*time.Second, "Set timeout for RPCs sent to the server.")
	flag.DurationVar(&connTimeout, "connect-timeout", 5*time.Second, "Set timeout for connecting to the server.")
	config.RegisterCommandLineFlags()
	flag.Parse()
	if err := config.Load(); err != nil {
		writeErr("Error: %s", err)
		return
	}

	if address == "" {
		address = os.Getenv(cli.EnvListen)
	}
	if discover {
		if address, err = findServer(connTimeout); err != nil {
			writeErr("Error: %s", err)
			return
		}
	}
	if address == "" {
		// Listen address from the config file, or the default.
		address = config.ListenAddress
	}

	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()
	client, err := snippet.Dial(ctx, address)
	if err != nil {
		writeErr("Error: %s", err)
		return
	}
	defer client.Close()

	if flag.NArg() > 0 {
		status = runCommand(client, flag.Args(), commandTimeout)
	} else {
		status = runInteractiveShell(client, commandTimeout)
	}
}
