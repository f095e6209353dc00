package models

import "time"

type EventType string

const (
	EventNew      EventType = "new"
	EventUpdate   EventType = "update"
	EventVote     EventType = "vote"
	EventWin      EventType = "win"
	EventReset    EventType = "reset"
	EventStatus   EventType = "status"
	EventConfig   EventType = "config"
	EventDeleted  EventType = "deleted"
	EventSnapshot EventType = "snapshot"
)

// Event is one state change delivered to the subscribers of an activity.
type Event struct {
	Type       EventType `json:"type"`
	ActivityID string    `json:"activityId"`
	Payload    any       `json:"payload,omitempty"`
	At         time.Time `json:"at"`
}
