package models

import (
	"time"

	"github.com/google/uuid"
)

// EventStatus is the lifecycle state of an event
type EventStatus string

const (
	EventStatusUpcoming  EventStatus = "upcoming"
	EventStatusOngoing   EventStatus = "ongoing"
	EventStatusCompleted EventStatus = "completed"
)

// Event is owned by the admin surface. Only fee, capacity, team bounds and the
// participant counter matter to the payment flow.
type Event struct {
	ID                  uuid.UUID   `json:"id" db:"id"`
	Title               string      `json:"title" db:"title"`
	Fee                 float64     `json:"fee" db:"fee"`
	MaxParticipants     int         `json:"max_participants" db:"max_participants"` // 0 = unlimited
	CurrentParticipants int         `json:"current_participants" db:"current_participants"`
	MinTeamSize         int         `json:"min_team_size" db:"min_team_size"`
	MaxTeamSize         int         `json:"max_team_size" db:"max_team_size"`
	Status              EventStatus `json:"status" db:"status"`
	CreatedAt           time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at" db:"updated_at"`
}

// IsFree reports whether the event can be joined without a payment
func (e *Event) IsFree() bool {
	return e.Fee <= 0
}

// IsFull reports whether the participant counter has reached capacity
func (e *Event) IsFull() bool {
	return e.MaxParticipants > 0 && e.CurrentParticipants >= e.MaxParticipants
}

// IsTeamEvent reports whether registrations must carry team data
func (e *Event) IsTeamEvent() bool {
	return e.MaxTeamSize > 1
}

// Team groups participants under a leader for team events
type Team struct {
	ID        uuid.UUID `json:"id" db:"id"`
	EventID   uuid.UUID `json:"event_id" db:"event_id"`
	LeaderID  uuid.UUID `json:"leader_id" db:"leader_id"`
	Name      string    `json:"name" db:"name"`
	Members   JSONB     `json:"members,omitempty" db:"members"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TeamMember is a non-leader team member supplied at registration time
type TeamMember struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Phone string `json:"phone,omitempty"`
}

// TeamInfo is the optional team payload of an event registration
type TeamInfo struct {
	TeamName string       `json:"teamName" validate:"required,max=100"`
	Members  []TeamMember `json:"members,omitempty" validate:"omitempty,dive"`
}

// Size counts the leader plus listed members
func (t *TeamInfo) Size() int {
	if t == nil {
		return 1
	}
	return 1 + len(t.Members)
}

// MembersJSONB renders members for the teams.members column
func (t *TeamInfo) MembersJSONB() JSONB {
	if t == nil || len(t.Members) == 0 {
		return nil
	}
	members := make([]interface{}, 0, len(t.Members))
	for _, m := range t.Members {
		members = append(members, map[string]interface{}{
			"name":  m.Name,
			"email": NormalizeEmail(m.Email),
			"phone": m.Phone,
		})
	}
	return JSONB{"members": members}
}
