package indicator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Freedesktop urgency levels carried in the "urgency" hint.
type urgency byte

const (
	urgencyNormal   urgency = 1
	urgencyCritical urgency = 2
)

const (
	iconMicrophone = "audio-input-microphone"
	iconError      = "dialog-error"
)

// desktopNote is one org.freedesktop.Notifications.Notify call.
type desktopNote struct {
	appName   string
	replaceID uint32
	icon      string
	summary   string
	urgency   urgency
	timeoutMS int
}

func (n desktopNote) args() []string {
	return []string{
		"--user",
		"call",
		"org.freedesktop.Notifications",
		"/org/freedesktop/Notifications",
		"org.freedesktop.Notifications",
		"Notify",
		"susssasa{sv}i",
		n.appName,
		strconv.FormatUint(uint64(n.replaceID), 10),
		n.icon,
		n.summary,
		"",
		"0",
		"1", "urgency", "y", strconv.Itoa(int(n.urgency)),
		strconv.Itoa(n.timeoutMS),
	}
}

// sendDesktopNote sends n over the session bus via busctl and returns the
// notification ID assigned by the server.
func sendDesktopNote(ctx context.Context, n desktopNote) (uint32, error) {
	out, err := busctl(ctx, "desktop notify", n.args()...)
	if err != nil {
		return 0, err
	}

	fields := strings.Fields(out)
	if len(fields) < 2 || fields[0] != "u" {
		return 0, fmt.Errorf("desktop notify invalid response: %q", out)
	}
	id, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("desktop notify parse id %q: %w", fields[1], err)
	}
	return uint32(id), nil
}

// closeDesktopNote requests explicit close by notification ID.
func closeDesktopNote(ctx context.Context, id uint32) error {
	_, err := busctl(ctx, "desktop dismiss",
		"--user",
		"call",
		"org.freedesktop.Notifications",
		"/org/freedesktop/Notifications",
		"org.freedesktop.Notifications",
		"CloseNotification",
		"u",
		strconv.FormatUint(uint64(id), 10),
	)
	return err
}

func busctl(ctx context.Context, op string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "busctl", args...).CombinedOutput()
	trimmed := strings.TrimSpace(string(out))
	if err != nil {
		if trimmed == "" {
			return "", fmt.Errorf("%s failed: %w", op, err)
		}
		return "", fmt.Errorf("%s failed: %w (%s)", op, err, trimmed)
	}
	return trimmed, nil
}
