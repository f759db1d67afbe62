// Sender.net API v2 wire types
//
// Response shapes based on https://api.sender.net/
package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/linkea-sync/internal/models"
)

// flexID accepts identifiers encoded as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %s", b)
	}
	*f = flexID(n.String())
	return nil
}

// SenderStatus is a subscriber status that may arrive as a bare string or as {"email": "...", "temail": "..."}.
type SenderStatus struct {
	Email         string `json:"email"`
	Transactional string `json:"temail"`
}

func (s *SenderStatus) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &s.Email)
	}
	type plain SenderStatus
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*s = SenderStatus(p)
	return nil
}

// SenderSubscriber represents a Sender.net subscriber.
type SenderSubscriber struct {
	ID        flexID         `json:"id"`
	Email     string         `json:"email"`
	Firstname string         `json:"firstname"`
	Lastname  string         `json:"lastname"`
	Status    SenderStatus   `json:"status"`
	Fields    map[string]any `json:"fields,omitempty"`
	Groups    []SenderGroup  `json:"subscriber_groups,omitempty"`
}

// SenderGroup represents a Sender.net group.
type SenderGroup struct {
	ID    flexID `json:"id"`
	Title string `json:"title"`
}

// SenderMeta carries pagination for list endpoints.
type SenderMeta struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// SenderSubscriberPage is one page of GET /subscribers.
type SenderSubscriberPage struct {
	Data []SenderSubscriber `json:"data"`
	Meta SenderMeta         `json:"meta"`
}

// HasMore reports whether another page follows.
func (p SenderSubscriberPage) HasMore() bool {
	return p.Meta.CurrentPage > 0 && p.Meta.CurrentPage < p.Meta.LastPage
}

type subscriberEnvelope struct {
	Success *bool             `json:"success,omitempty"`
	Data    *SenderSubscriber `json:"data"`
}

type groupEnvelope struct {
	Success *bool        `json:"success,omitempty"`
	Data    *SenderGroup `json:"data"`
}

type groupsEnvelope struct {
	Data []SenderGroup `json:"data"`
}

type successEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// CreateSubscriberRequest is the body of POST /subscribers.
type CreateSubscriberRequest struct {
	Email             string                  `json:"email"`
	Firstname         string                  `json:"firstname,omitempty"`
	Lastname          string                  `json:"lastname,omitempty"`
	Status            models.SubscriberStatus `json:"status"`
	TriggerAutomation bool                    `json:"trigger_automation"`
	Groups            []string                `json:"groups,omitempty"`
	Fields            map[string]string       `json:"fields,omitempty"`
}

// UpdateSubscriberRequest is the body of PATCH /subscribers/{identifier}.
type UpdateSubscriberRequest struct {
	Firstname                string                  `json:"firstname"`
	Lastname                 string                  `json:"lastname"`
	SubscriberStatus         models.SubscriberStatus `json:"subscriber_status"`
	TransactionalEmailStatus models.SubscriberStatus `json:"transactional_email_status"`
	TriggerAutomation        *bool                   `json:"trigger_automation,omitempty"`
	Groups                   []string                `json:"groups,omitempty"`
	Fields                   map[string]string       `json:"fields,omitempty"`
}

type deleteSubscribersRequest struct {
	Subscribers []string `json:"subscribers"`
}

type createGroupRequest struct {
	Title string `json:"title"`
}

// ToModel converts to [models.Subscriber]. Field values are stringified.
func (s SenderSubscriber) ToModel() *models.Subscriber {
	sub := &models.Subscriber{
		ID:                       string(s.ID),
		Email:                    s.Email,
		FirstName:                s.Firstname,
		LastName:                 s.Lastname,
		Status:                   models.SubscriberStatus(strings.ToUpper(s.Status.Email)),
		TransactionalEmailStatus: models.SubscriberStatus(strings.ToUpper(s.Status.Transactional)),
	}
	if len(s.Fields) > 0 {
		sub.Fields = make(map[string]string, len(s.Fields))
		for k, v := range s.Fields {
			sub.Fields[k] = stringify(v)
		}
	}
	for _, g := range s.Groups {
		sub.Groups = append(sub.Groups, g.ToModel())
	}
	return sub
}

// ToModel converts to [models.Group].
func (g SenderGroup) ToModel() models.Group {
	return models.Group{ID: string(g.ID), Title: g.Title}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
