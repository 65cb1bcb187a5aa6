// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EduPulse Contributors

// Package realtime bridges server push events into local, decoupled
// notifications and refresh hints. Consumers re-query their own canonical
// state when hinted; the payload is never authoritative.
package realtime

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Topic is a server-side push event name.
type Topic string

const (
	TopicDownloadsCreated    Topic = "downloads:created"
	TopicAttendanceChanged   Topic = "attendance:changed"
	TopicMarksAdded          Topic = "marks:added"
	TopicMarksPublished      Topic = "marks:published"
	TopicMarksUpdated        Topic = "marks:updated"
	TopicNotificationCreated Topic = "notification:created"
	TopicNotificationRead    Topic = "notification:read"
)

// Stream is a local pub/sub channel; several server topics fold into one
// stream per domain.
type Stream string

const (
	StreamDownloads     Stream = "realtime:downloads"
	StreamAttendance    Stream = "realtime:attendance"
	StreamMarks         Stream = "realtime:marks"
	StreamNotifications Stream = "realtime:notifications"
)

var topicStreams = map[Topic]Stream{
	TopicDownloadsCreated:    StreamDownloads,
	TopicAttendanceChanged:   StreamAttendance,
	TopicMarksAdded:          StreamMarks,
	TopicMarksPublished:      StreamMarks,
	TopicMarksUpdated:        StreamMarks,
	TopicNotificationCreated: StreamNotifications,
	TopicNotificationRead:    StreamNotifications,
}

// StreamFor returns the local stream a topic republishes on.
// ok is false for topics the client does not consume.
func (t Topic) StreamFor() (Stream, bool) {
	s, ok := topicStreams[t]
	return s, ok
}

// Describe returns the generic, user-visible text for the ambient toast.
func (t Topic) Describe() string {
	switch t {
	case TopicDownloadsCreated:
		return "A new download is available"
	case TopicAttendanceChanged:
		return "Attendance has been updated"
	case TopicMarksAdded:
		return "New marks have been added"
	case TopicMarksPublished:
		return "Marks have been published"
	case TopicMarksUpdated:
		return "Marks have been updated"
	case TopicNotificationCreated:
		return "You have a new notification"
	case TopicNotificationRead:
		return "A notification was read"
	default:
		return "Something changed"
	}
}

// Event is one received push event, republished locally as a refresh hint.
type Event struct {
	ID         ulid.ULID
	Topic      Topic
	Payload    json.RawMessage
	ReceivedAt time.Time
}

// Stream returns the local stream this event belongs to.
func (e Event) Stream() Stream {
	s, _ := e.Topic.StreamFor()
	return s
}
