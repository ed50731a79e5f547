// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package sse

import (
	"encoding/json"
	"fmt"
	"strings"

	"codeberg.org/kantama/portal/internal/events"
)

// Event names sent on the stream.
const (
	EventConnected     = "connected"
	EventStatusChanged = "status_changed"
)

// FormatEvent formats a message as an SSE event with optional event name.
// Multiline content is properly prefixed with "data:".
func FormatEvent(eventName, data string) string {
	var sb strings.Builder

	if eventName != "" {
		sb.WriteString(fmt.Sprintf("event: %s\n", eventName))
	}

	for _, line := range strings.Split(data, "\n") {
		sb.WriteString(fmt.Sprintf("data: %s\n", line))
	}

	sb.WriteString("\n") // Empty line marks end of event
	return sb.String()
}

// FormatStatusChanged encodes a status event as a status_changed SSE event.
func FormatStatusChanged(event events.StatusChanged) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	return FormatEvent(EventStatusChanged, string(data)), nil
}

// Heartbeat is an SSE comment that keeps the connection alive.
// Comments (lines starting with :) are ignored by SSE clients.
const Heartbeat = ": heartbeat\n\n"
