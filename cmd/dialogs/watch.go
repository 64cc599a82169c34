package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/omochice/dialog-session/internal/config"
	"github.com/omochice/dialog-session/internal/dialogs"
	"github.com/omochice/dialog-session/internal/events"
	"github.com/omochice/dialog-session/internal/logging"
	"github.com/omochice/dialog-session/internal/notice"
	"github.com/omochice/dialog-session/internal/session"
	"github.com/omochice/dialog-session/internal/token"
	wstransport "github.com/omochice/dialog-session/internal/transport/ws"
)

const watchCommandLong = `Connect to the backend and follow the dialog list.

COMMANDS (read from stdin):
    list                 Print the dialog list
    more                 Load the next page
    refresh              Reload from the first page
    select <uid>...      Add dialogs to the selection
    unselect <uid>...    Remove dialogs from the selection
    delete               Delete the selected dialogs
    cancel               Leave selection mode
    open <uid>           Open a dialog
    rotate <push-token>  Rotate the push token and reconnect
    quit                 Log out and exit`

type watchFlags struct {
	server    string
	token     string
	pushToken string
	logLevel  string
	logFile   string
}

func newWatchCmd(in io.Reader, out io.Writer) *cobra.Command {
	var flags watchFlags
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the dialog list interactively",
		Long:  watchCommandLong,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cfg, in, out)
		},
	}
	cmd.Flags().StringVar(&flags.server, "server", "", "backend WebSocket URL")
	cmd.Flags().StringVar(&flags.token, "token", "", "authentication token")
	cmd.Flags().StringVar(&flags.pushToken, "push-token", "", "push delivery token")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&flags.logFile, "log-file", "", "write JSON logs to this file")
	return cmd
}

// apply overrides cfg with flags set on the command line.
func (f watchFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	set := cmd.Flags().Changed
	if set("server") {
		cfg.ServerURL = f.server
	}
	if set("token") {
		cfg.AuthToken = f.token
	}
	if set("push-token") {
		cfg.PushToken = f.pushToken
	}
	if set("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if set("log-file") {
		cfg.LogFile = f.logFile
	}
}

func runWatch(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	log, closer, err := logging.Open(cfg.LogFile, logging.Config{Level: cfg.LogLevel})
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer closer.Close()

	tokens := token.NewMemory(cfg.AuthToken, cfg.PushToken)
	sess := session.New(session.Options{
		URL:         cfg.ServerURL,
		Tokens:      tokens,
		Dialer:      wstransport.Dialer{Timeout: cfg.DialTimeout},
		DialTimeout: cfg.DialTimeout,
		Reconnect: session.ReconnectPolicy{
			Enabled:     cfg.Reconnect.Enabled,
			BaseDelay:   cfg.Reconnect.BaseDelay,
			MaxDelay:    cfg.Reconnect.MaxDelay,
			MaxAttempts: cfg.Reconnect.MaxAttempts,
		},
		Logger: log,
	})

	view := newView(out)
	view.attach(sess.Bus())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(ctx) }()

	if err := sess.Login(ctx); err != nil {
		return fmt.Errorf("failed to log in: %w", err)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			quit, err := execute(ctx, sess, tokens, view, line)
			if err != nil {
				fmt.Fprintln(out, err)
			}
			if quit {
				break loop
			}
		}
	}

	if ctx.Err() == nil {
		if err := sess.Logout(ctx); err != nil {
			log.Warn("logout failed", "error", err)
		}
	}
	cancel()
	return <-runErr
}

// execute runs one input line and reports whether the user asked to quit.
func execute(ctx context.Context, sess *session.Session, tokens *token.Memory, view *view, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	name, args := fields[0], fields[1:]

	var err error
	switch name {
	case "quit", "exit":
		return true, nil
	case "rotate":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: rotate <push-token>")
		}
		tokens.SetPush(args[0])
		return false, nil
	case "list":
		err = sess.Do(ctx, func(c *dialogs.Controller) { view.list(c.Store().Items(), c.Selected()) })
	case "more":
		err = sess.Do(ctx, func(c *dialogs.Controller) {
			if !c.Pager().LoadMore() {
				view.notice(notice.Info("", "a page request is already in flight or the connection is down"))
			}
		})
	case "refresh":
		err = sess.Do(ctx, func(c *dialogs.Controller) { c.Pager().Refresh() })
	case "select", "unselect":
		if len(args) == 0 {
			return false, fmt.Errorf("usage: %s <uid>...", name)
		}
		err = sess.Do(ctx, func(c *dialogs.Controller) {
			for _, uid := range args {
				if !c.Selection().Toggle(uid, name == "select") {
					view.notice(notice.Error("Unknown dialog", uid))
				}
			}
		})
	case "delete":
		err = sess.Do(ctx, func(c *dialogs.Controller) {
			if !c.Selection().DeleteSelected() {
				view.notice(notice.Info("", "nothing to delete"))
			}
		})
	case "cancel":
		err = sess.Do(ctx, func(c *dialogs.Controller) { c.Selection().Exit() })
	case "open":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: open <uid>")
		}
		err = sess.Do(ctx, func(c *dialogs.Controller) {
			if !c.Open(args[0]) {
				view.notice(notice.Error("Unknown dialog", args[0]))
			}
		})
	default:
		return false, fmt.Errorf("unknown command %q", name)
	}
	return false, err
}

// attach prints bus events that concern the user.
func (v *view) attach(bus *events.Bus) {
	bus.Subscribe(events.Notice, func(ev events.Event) {
		if n, ok := ev.Value.(notice.Notice); ok {
			v.notice(n)
		}
	})
	bus.Subscribe(events.OpenDialog, func(ev events.Event) {
		if req, ok := ev.Value.(dialogs.OpenRequest); ok {
			v.opened(req)
		}
	})
	bus.Subscribe(events.Connected, func(events.Event) { v.status("connected") })
	bus.Subscribe(events.Closed, func(events.Event) { v.status("disconnected") })
	bus.Subscribe(events.DialogsChanged, func(ev events.Event) {
		if items, ok := ev.Value.([]dialogs.Summary); ok {
			v.status(fmt.Sprintf("%d dialogs", len(items)))
		}
	})
}
