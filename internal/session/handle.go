package session

import (
	"context"
	"fmt"

	"github.com/rbright/parley/internal/ipc"
)

// Handle serves IPC commands for the owner process.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return c.response(true, c.LastStatus().String(), "")
	case ipc.CommandPress, ipc.CommandRelease:
		source, err := ParseSource(req.Source)
		if err != nil {
			return c.response(false, "", err.Error())
		}
		g := Gesture{Source: source, Repeat: req.Repeat, InTextField: req.InTextField}
		if req.Command == ipc.CommandPress {
			return c.edge(c.Press(ctx, g))
		}
		return c.edge(c.Release(ctx, g))
	case ipc.CommandBlur:
		return c.edge(c.Blur(ctx))
	case ipc.CommandMode:
		mode, err := ParseMode(req.Argument)
		if err != nil {
			return c.response(false, "", err.Error())
		}
		if err := c.SetMode(ctx, mode); err != nil {
			return c.response(false, "", err.Error())
		}
		return c.response(true, fmt.Sprintf("mode %s", mode), "")
	case ipc.CommandSay:
		ok, err := c.SendText(ctx, req.Argument)
		if err != nil {
			return c.response(false, "", err.Error())
		}
		if !ok {
			return c.response(false, "", "nothing to send")
		}
		return c.response(true, "message queued", "")
	case ipc.CommandListen:
		return c.edge(c.Listen(ctx))
	case ipc.CommandUnlisten:
		return c.edge(c.Unlisten(ctx))
	default:
		return c.response(false, "", fmt.Sprintf("unknown command: %s", req.Command))
	}
}

func (c *Controller) edge(accepted bool, err error) ipc.Response {
	if err != nil {
		return c.response(false, "", err.Error())
	}
	if !accepted {
		return c.response(true, "ignored", "")
	}
	return c.response(true, "accepted", "")
}

func (c *Controller) response(ok bool, message string, errText string) ipc.Response {
	return ipc.Response{
		OK:      ok,
		State:   string(c.State()),
		Mode:    string(c.Mode()),
		Message: message,
		Error:   errText,
	}
}
