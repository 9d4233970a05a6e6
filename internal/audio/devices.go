// Package audio talks to the Pulse server: it lists devices, captures the
// microphone for recognition, and plays synthesized replies.
package audio

import (
	"context"
	"fmt"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	iconMicrophone = "audio-input-microphone"
	iconSpeakers   = "audio-speakers"
)

// Device describes one Pulse source or sink.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Usable reports whether the device can carry audio right now.
func (d Device) Usable() bool {
	return d.Available && !d.Muted
}

// unusableReason names why Usable is false.
func (d Device) unusableReason() string {
	if d.Muted {
		return "muted"
	}
	return "unavailable"
}

// ListDevices returns the Pulse input sources.
func ListDevices(_ context.Context) ([]Device, error) {
	return query(iconMicrophone, func(client *pulse.Client) ([]Device, error) {
		def, err := client.DefaultSource()
		if err != nil {
			return nil, fmt.Errorf("read default source: %w", err)
		}

		var infos pulseproto.GetSourceInfoListReply
		if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &infos); err != nil {
			return nil, fmt.Errorf("list sources: %w", err)
		}

		devices := make([]Device, 0, len(infos))
		for _, info := range infos {
			if info == nil {
				continue
			}
			devices = append(devices, Device{
				ID:          info.SourceName,
				Description: info.Device,
				State:       deviceState(info.State),
				Available:   activePortAvailable(info),
				Muted:       info.Mute,
				Default:     info.SourceName == def.ID(),
			})
		}
		return devices, nil
	})
}

// ListSinks returns the Pulse output sinks replies can be played on.
func ListSinks(_ context.Context) ([]Device, error) {
	return query(iconSpeakers, func(client *pulse.Client) ([]Device, error) {
		def, err := client.DefaultSink()
		if err != nil {
			return nil, fmt.Errorf("read default sink: %w", err)
		}

		var infos pulseproto.GetSinkInfoListReply
		if err := client.RawRequest(&pulseproto.GetSinkInfoList{}, &infos); err != nil {
			return nil, fmt.Errorf("list sinks: %w", err)
		}

		devices := make([]Device, 0, len(infos))
		for _, info := range infos {
			if info == nil {
				continue
			}
			devices = append(devices, Device{
				ID:          info.SinkName,
				Description: info.Device,
				State:       deviceState(info.State),
				Available:   true,
				Muted:       info.Mute,
				Default:     info.SinkName == def.ID(),
			})
		}
		return devices, nil
	})
}

// query runs fn on a short-lived client.
func query(icon string, fn func(*pulse.Client) ([]Device, error)) ([]Device, error) {
	client, err := newClient(icon)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return fn(client)
}

func newClient(icon string) (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("parley"),
		pulse.ClientApplicationIconName(icon),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

var deviceStates = map[uint32]string{
	0: "running",
	1: "idle",
	2: "suspended",
}

func deviceState(state uint32) string {
	if name, ok := deviceStates[state]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", state)
}

// Pulse port availability values.
const (
	portAvailabilityUnknown = 0
	portAvailabilityYes     = 2
)

// activePortAvailable treats a source without ports, or whose active port is
// not listed, as available.
func activePortAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	for _, port := range source.Ports {
		if port.Name == source.ActivePortName {
			return port.Available == portAvailabilityUnknown || port.Available == portAvailabilityYes
		}
	}
	return true
}
