package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoInputDevices     = errors.New("no audio input devices found")
	ErrNoDefaultSource    = errors.New("default audio source is unavailable")
	errPreferenceNotFound = errors.New("did not match any device")
)

// Selection is the source to capture from. Warning is set when the configured
// input was skipped.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

// SelectDevice resolves the audio.input and audio.fallback preferences
// against the live sources.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, input, fallback)
}

// selectDeviceFromList prefers the input device, and moves to the fallback
// only when the input is muted or unavailable.
func selectDeviceFromList(devices []Device, input string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, ErrNoInputDevices
	}

	primary, err := parsePreference(input).resolve(devices)
	if err != nil {
		return Selection{}, fmt.Errorf("audio.input %q: %w", input, err)
	}
	if primary.Usable() {
		return Selection{Device: primary}, nil
	}

	reason := primary.unusableReason()
	backup, err := parsePreference(fallback).resolve(devices)
	if err != nil {
		return Selection{}, fmt.Errorf("audio.input %q is %s and audio.fallback %q: %w", primary.ID, reason, fallback, err)
	}
	if !backup.Usable() {
		return Selection{}, fmt.Errorf("audio.fallback %q is %s", backup.ID, backup.unusableReason())
	}

	return Selection{
		Device:   backup,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, reason, backup.ID),
		Fallback: primary.ID != backup.ID,
	}, nil
}

// preference is a configured device term. Blank and "default" name the
// server default; anything else matches an ID or description substring.
type preference string

func parsePreference(raw string) preference {
	return preference(strings.ToLower(strings.TrimSpace(raw)))
}

func (p preference) resolve(devices []Device) (Device, error) {
	if p == "" || p == "default" {
		for _, d := range devices {
			if d.Default {
				return d, nil
			}
		}
		return Device{}, ErrNoDefaultSource
	}
	for _, d := range devices {
		if d.matches(string(p)) {
			return d, nil
		}
	}
	return Device{}, errPreferenceNotFound
}

// matches reports whether a lower-case term occurs in the device ID or
// description.
func (d Device) matches(term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(d.ID), term) ||
		strings.Contains(strings.ToLower(d.Description), term)
}
