package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"github.com/pulsefeed/pulsefeed-go/pkg/wire"
)

// watch is one live SSE subscription held by the console.
type watch struct {
	id       int
	category string
	entity   string
	cancel   context.CancelFunc
}

// console is the interactive command loop.
type console struct {
	server  string
	session string
	rl      *readline.Instance

	mu      sync.Mutex
	watches map[int]*watch
	nextID  int
}

func newConsole(server string, rl *readline.Instance) *console {
	return &console{
		server:  strings.TrimRight(server, "/"),
		session: uuid.NewString(),
		rl:      rl,
		watches: make(map[int]*watch),
	}
}

// run processes commands until EOF or quit.
func (c *console) run() {
	c.printHelp()

	for {
		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			break // EOF
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "watch", "w":
			c.cmdWatch(args)

		case "watches", "ls":
			c.cmdWatches()

		case "stop":
			c.cmdStop(args)

		case "session":
			fmt.Fprintln(c.rl.Stdout(), c.session)

		case "quit", "exit", "q":
			c.stopAll()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "unknown command %q (try 'help')\n", cmd)
		}
	}
	c.stopAll()
}

func (c *console) printHelp() {
	out := c.rl.Stdout()
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  watch <category> <entity> [key=value ...]  start streaming (orders|deliveries|merchants)")
	fmt.Fprintln(out, "  watches                                    list active watches")
	fmt.Fprintln(out, "  stop <id>                                  stop one watch")
	fmt.Fprintln(out, "  session                                    show this console's session id")
	fmt.Fprintln(out, "  quit                                       exit")
}

// cmdWatch starts one SSE stream in the background.
func (c *console) cmdWatch(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "usage: watch <category> <entity> [key=value ...]")
		return
	}
	category, entity := args[0], args[1]

	query := url.Values{}
	for _, pair := range args[2:] {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			fmt.Fprintf(c.rl.Stdout(), "ignoring malformed filter %q (want key=value)\n", pair)
			continue
		}
		query.Set(key, value)
	}

	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.nextID++
	w := &watch{id: c.nextID, category: category, entity: entity, cancel: cancel}
	c.watches[w.id] = w
	c.mu.Unlock()

	fmt.Fprintf(c.rl.Stdout(), "[%d] watching %s/%s\n", w.id, category, entity)

	go func() {
		err := c.stream(ctx, w, query)
		if err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(c.rl.Stdout(), "[%d] stream ended: %v\n", w.id, err)
		} else {
			fmt.Fprintf(c.rl.Stdout(), "[%d] stream closed\n", w.id)
		}
		c.mu.Lock()
		delete(c.watches, w.id)
		c.mu.Unlock()
	}()
}

// stream reads one SSE connection until it ends or is cancelled.
func (c *console) stream(ctx context.Context, w *watch, query url.Values) error {
	endpoint := fmt.Sprintf("%s/streams/%s/%s", c.server, url.PathEscape(w.category), url.PathEscape(w.entity))
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Session-ID", c.session)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	event := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			c.printEvent(w, event, strings.TrimPrefix(line, "data: "))
		case line == "":
			event = ""
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return ctx.Err()
}

// printEvent renders one SSE event.
func (c *console) printEvent(w *watch, event, data string) {
	out := c.rl.Stdout()
	switch event {
	case "update":
		raw, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			fmt.Fprintf(out, "[%d] bad payload: %v\n", w.id, err)
			return
		}
		update, err := wire.DecodeUpdate(raw)
		if err != nil {
			fmt.Fprintf(out, "[%d] bad envelope: %v\n", w.id, err)
			return
		}
		tag := "cycle " + strconv.FormatUint(update.Cycle, 10)
		if update.Priming {
			tag = "priming"
		}
		fmt.Fprintf(out, "[%d] %s/%s (%s): %s\n", w.id, w.category, w.entity, tag, update.Data)
	case "error":
		fmt.Fprintf(out, "[%d] server error: %s\n", w.id, data)
	case "session":
		// The server echoes the session we supplied; nothing to do.
	}
}

func (c *console) cmdWatches() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.watches) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "no active watches")
		return
	}
	for _, w := range c.watches {
		fmt.Fprintf(c.rl.Stdout(), "[%d] %s/%s\n", w.id, w.category, w.entity)
	}
}

func (c *console) cmdStop(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "usage: stop <id>")
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "bad watch id %q\n", args[0])
		return
	}

	c.mu.Lock()
	w, ok := c.watches[id]
	c.mu.Unlock()

	if !ok {
		fmt.Fprintf(c.rl.Stdout(), "no watch %d\n", id)
		return
	}
	w.cancel()
}

func (c *console) stopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.watches {
		w.cancel()
	}
}
