// Command pulsefeed-cli is an interactive console for watching live
// streams from a pulsefeedd daemon.
//
// Usage:
//
//	pulsefeed-cli [flags]
//
// Flags:
//
//	-server string  Base URL of the daemon (default "http://localhost:8080")
//
// Inside the console:
//
//	watch orders order-42 view=merchant
//	watch deliveries delivery-7 precision=coarse
//	watches
//	stop 1
//	quit
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chzyer/readline"
)

var serverURL = flag.String("server", "http://localhost:8080", "Base URL of the daemon")

func main() {
	flag.Parse()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pulsefeed> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	console := newConsole(*serverURL, rl)
	console.run()
}
