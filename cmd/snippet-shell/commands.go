package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/blesnip/leaudio-snippet/pkg/snippet"
)

var ErrCommandLineArgs = errors.New("invalid command line arguments")

// DefaultEventTimeout is used by the wait command when no timeout is given.
const DefaultEventTimeout = "10000"

// shellCommand is a shortcut that expands into an RPC.
type shellCommand struct {
	help   string
	args   []string
	method string
	// expand converts shell arguments into RPC parameters.
	expand func(args []string) ([]interface{}, error)
}

var shellCommands = map[string]*shellCommand{
	"wait": {
		help:   "Wait for an event (timeout defaults to 10s)",
		args:   []string{"CALLBACK_ID", "EVENT", "[TIMEOUT_MS]"},
		method: "eventWaitAndGet",
		expand: func(args []string) ([]interface{}, error) {
			if len(args) < 2 || len(args) > 3 {
				return nil, ErrCommandLineArgs
			}
			timeout := DefaultEventTimeout
			if len(args) == 3 {
				timeout = args[2]
			}
			ms, err := strconv.Atoi(timeout)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid timeout '%s'", ErrCommandLineArgs, timeout)
			}
			return []interface{}{args[0], args[1], ms}, nil
		},
	},
	"events": {
		help:   "Fetch and remove all queued events",
		args:   []string{"CALLBACK_ID", "EVENT"},
		method: "eventGetAll",
		expand: func(args []string) ([]interface{}, error) {
			if len(args) != 2 {
				return nil, ErrCommandLineArgs
			}
			return []interface{}{args[0], args[1]}, nil
		},
	},
}

func printShellCommands() {
	var names []string
	for name := range shellCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := shellCommands[name]
		fmt.Printf("  %s %s\n      %s\n", name, strings.Join(c.args, " "), c.help)
	}
	fmt.Printf("  help\n      List the server's RPCs\n")
	fmt.Printf("  exit\n      Leave the interactive shell\n")
}

// parseArgument interprets a shell word as JSON if possible and as a string otherwise.
func parseArgument(arg string) interface{} {
	var value interface{}
	if err := json.Unmarshal([]byte(arg), &value); err == nil {
		return value
	}
	return arg
}

// rpcArguments converts a shell command line into an RPC method and parameters.
func rpcArguments(args []string) (string, []interface{}, error) {
	if len(args) == 0 {
		return "", nil, errors.New("missing COMMAND")
	}
	if c, ok := shellCommands[args[0]]; ok {
		params, err := c.expand(args[1:])
		if err != nil {
			return "", nil, fmt.Errorf("%w\nUsage: %s %s", err, args[0], strings.Join(c.args, " "))
		}
		return c.method, params, nil
	}
	params := make([]interface{}, 0, len(args)-1)
	for _, arg := range args[1:] {
		params = append(params, parseArgument(arg))
	}
	return args[0], params, nil
}

func execute(ctx context.Context, client *snippet.Client, args []string, out io.Writer) error {
	method, params, err := rpcArguments(args)
	if err != nil {
		return err
	}
	response, err := client.Call(ctx, method, params...)
	if err != nil {
		return err
	}
	if response.Callback != nil {
		fmt.Fprintf(out, "callback: %s\n", *response.Callback)
	}
	if response.Result == nil {
		return nil
	}
	if text, ok := response.Result.(string); ok {
		fmt.Fprintln(out, text)
		return nil
	}
	encoded, err := json.MarshalIndent(response.Result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(encoded))
	return nil
}
