package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"relaychat/internal/app/protocol"
	"relaychat/internal/app/registry"
	"relaychat/internal/app/session"
	"relaychat/internal/configs"
	"relaychat/internal/pkg/errs"
	"relaychat/internal/pkg/randx"
)

// consoleTick is how often the console polls the session between input lines.
const consoleTick = 50 * time.Millisecond

const consoleHelp = `Commands:
  /channels             list your channels
  /switch <channel>     send plain lines to another channel
  /private [user]       open a channel with a user, or one of your own
  /invite <user> [ch]   invite a user to the current channel or to ch
  /leave [channel]      leave the current channel or the given one
  /users                refresh member lists and print the current one
  /whois <user>         ask the server for a user's name
  /name <name>          change your name
  /reconnect            reconnect to the server
  /quit                 exit
Anything else is sent to the current channel.`

var errQuit = errors.New("quit")

type console struct {
	sess    *session.Session
	current protocol.ChannelID
	out     io.Writer
	online  bool
}

func runClient(ctx context.Context, cfg *configs.AppConfig, in io.Reader, out io.Writer) error {
	name := cfg.Username
	if name == "" {
		var err error
		if name, err = randx.UserNickname(); err != nil {
			return err
		}
	}

	sess := session.New(session.Options{
		Address:      cfg.ServerAddress,
		Username:     name,
		WriteTimeout: cfg.WriteTimeout,
		Limits: registry.Limits{
			MaxChannels: cfg.MaxChannels,
			MaxMembers:  cfg.MaxChannelMembers,
			MaxHistory:  cfg.MaxChannelHistory,
		},
	})
	defer sess.Close()

	c := &console{sess: sess, current: protocol.ChannelGlobal, out: out}

	fmt.Fprintf(out, "Connecting to %s as %s...\n", cfg.ServerAddress, name)
	if err := sess.Connect(ctx); err != nil {
		fmt.Fprintf(out, "! %v (type /reconnect to retry)\n", err)
	} else {
		c.online = true
		fmt.Fprintln(out, "Connected. Type /help for commands.")
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(consoleTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := c.handleLine(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				fmt.Fprintf(out, "! %v\n", err)
			}
			c.poll()

		case <-ticker.C:
			c.poll()
		}
	}
}

// poll drains the session and prints what arrived.
func (c *console) poll() {
	for _, m := range c.sess.PollIncoming() {
		c.print(m)
	}

	if c.online && !c.sess.Connected() {
		c.online = false
		if err := c.sess.LastError(); err != nil {
			fmt.Fprintf(c.out, "! Disconnected: %v (type /reconnect to retry)\n", err)
		} else {
			fmt.Fprintln(c.out, "! Disconnected (type /reconnect to retry)")
		}
	}

	if _, ok := c.sess.ChannelName(c.current); !ok {
		c.current = protocol.ChannelGlobal
	}
}

func (c *console) print(m protocol.Message) {
	label := fmt.Sprintf("#%d", m.Channel)
	if name, ok := c.sess.ChannelName(m.Channel); ok {
		label = name
	}

	if m.Sender == protocol.ServerUserID {
		fmt.Fprintf(c.out, "[%s] * %s\n", label, m.Text())
		return
	}
	fmt.Fprintf(c.out, "[%s] %s: %s\n", label, c.sess.UserName(m.Sender), m.Text())
}

func (c *console) handleLine(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if !strings.HasPrefix(line, "/") {
		if err := c.sess.SendText(c.current, line); err != nil {
			return err
		}
		hist := c.sess.History(c.current)
		if len(hist) > 0 {
			c.print(hist[len(hist)-1])
		}
		return nil
	}

	cmd, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "help":
		fmt.Fprintln(c.out, consoleHelp)
		return nil

	case "quit", "exit":
		return errQuit

	case "channels":
		for _, cid := range c.sess.Channels() {
			name, _ := c.sess.ChannelName(cid)
			marker := " "
			if cid == c.current {
				marker = "*"
			}
			fmt.Fprintf(c.out, "%s %d %s (%d members)\n", marker, cid, name, len(c.sess.Members(cid)))
		}
		return nil

	case "switch":
		cid, err := parseChannel(rest)
		if err != nil {
			return err
		}
		name, ok := c.sess.ChannelName(cid)
		if !ok {
			return errs.NewError(errs.ErrChannelNotFound, cid)
		}
		c.current = cid
		fmt.Fprintf(c.out, "Now talking in %s.\n", name)
		return nil

	case "private":
		var uid protocol.UserID
		if rest != "" {
			var err error
			if uid, err = parseUser(rest); err != nil {
				return err
			}
		}
		return c.sess.CreatePrivateChannel(uid)

	case "invite":
		userArg, chArg, _ := strings.Cut(rest, " ")
		uid, err := parseUser(userArg)
		if err != nil {
			return err
		}
		cid := c.current
		if chArg = strings.TrimSpace(chArg); chArg != "" {
			if cid, err = parseChannel(chArg); err != nil {
				return err
			}
		}
		return c.sess.InviteUser(uid, cid)

	case "leave":
		cid := c.current
		if rest != "" {
			var err error
			if cid, err = parseChannel(rest); err != nil {
				return err
			}
		}
		if err := c.sess.LeaveChannel(cid); err != nil {
			return err
		}
		if cid == c.current {
			c.current = protocol.ChannelGlobal
		}
		return nil

	case "users":
		if err := c.sess.RequestUserList(); err != nil {
			return err
		}
		for _, uid := range c.sess.Members(c.current) {
			fmt.Fprintf(c.out, "  %d %s\n", uid, c.sess.UserName(uid))
		}
		return nil

	case "whois":
		uid, err := parseUser(rest)
		if err != nil {
			return err
		}
		return c.sess.RequestUserName(uid)

	case "name":
		return c.sess.SendUsername(rest)

	case "reconnect":
		if err := c.sess.Reconnect(ctx); err != nil {
			return err
		}
		c.online = true
		c.current = protocol.ChannelGlobal
		fmt.Fprintln(c.out, "Reconnected.")
		return nil
	}

	return fmt.Errorf("unknown command /%s (try /help)", cmd)
}

func parseUser(s string) (protocol.UserID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil || v == 0 {
		return 0, errs.NewError(errs.ErrInvalidParams)
	}
	return protocol.UserID(v), nil
}

func parseChannel(s string) (protocol.ChannelID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil || v == 0 {
		return 0, errs.NewError(errs.ErrInvalidParams)
	}
	return protocol.ChannelID(v), nil
}
