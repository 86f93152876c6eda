// Package ingest parses and validates task outcomes reported by external
// grading surfaces, via URL query parameters or structured message events.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// MessageType is the discriminator external surfaces tag result messages with.
const MessageType = "oge_result"

var (
	// ErrMissingFields is returned when token, lessonId or taskId is absent.
	ErrMissingFields = errors.New("отсутствуют обязательные параметры: token, lessonId, taskId")

	// ErrNotResultMessage is returned for messages with a different type tag.
	ErrNotResultMessage = errors.New("not a result message")

	// ErrTokenMismatch is returned when a report names a token other than
	// the student it is being applied to.
	ErrTokenMismatch = errors.New("report token does not match the active student")
)

// Report is one task outcome reported for a student.
type Report struct {
	Token    string   `json:"token"`
	LessonID int      `json:"lessonId"`
	TaskID   string   `json:"taskId"`
	Score    int      `json:"score"`
	Max      int      `json:"max"`
	Passed   bool     `json:"passed"`
	Mistakes []string `json:"mistakes,omitempty"`
	Source   string   `json:"source,omitempty"`
	Notes    string   `json:"notes,omitempty"`
}

// ParseQuery builds a report from URL query parameters
// (token, lessonId, taskId, score, max, passed, mistakes, source).
func ParseQuery(values url.Values) (Report, error) {
	token := values.Get("token")
	lessonID := values.Get("lessonId")
	taskID := values.Get("taskId")

	if token == "" || lessonID == "" || taskID == "" {
		return Report{}, ErrMissingFields
	}

	lid, err := strconv.Atoi(lessonID)
	if err != nil {
		return Report{}, fmt.Errorf("invalid lessonId %q: %w", lessonID, err)
	}

	r := Report{
		Token:    token,
		LessonID: lid,
		TaskID:   taskID,
		Passed:   values.Get("passed") == "true",
		Source:   values.Get("source"),
	}
	if s := values.Get("score"); s != "" {
		r.Score, _ = strconv.Atoi(s)
	}
	if m := values.Get("max"); m != "" {
		r.Max, _ = strconv.Atoi(m)
	}
	if ms := values.Get("mistakes"); ms != "" {
		for _, id := range strings.Split(ms, ",") {
			if id != "" {
				r.Mistakes = append(r.Mistakes, id)
			}
		}
	}
	return r, nil
}

// messageSchema validates the payload of an oge_result message event.
var messageSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"required": ["type", "data"],
	"properties": {
		"type": {"type": "string"},
		"data": {
			"type": "object",
			"required": ["token", "lessonId", "taskId", "passed"],
			"properties": {
				"token":    {"type": "string", "minLength": 1},
				"lessonId": {"type": "integer", "minimum": 1},
				"taskId":   {"type": "string", "minLength": 1},
				"score":    {"type": "integer", "minimum": 0},
				"max":      {"type": "integer", "minimum": 0},
				"passed":   {"type": "boolean"},
				"mistakes": {"type": "array", "items": {"type": "string"}},
				"notes":    {"type": "string"}
			}
		}
	}
}`)

type resultMessage struct {
	Type string `json:"type"`
	Data Report `json:"data"`
}

// ParseMessage builds a report from a structured message event. Messages
// with a different type tag yield ErrNotResultMessage; payloads violating
// the schema yield a validation error.
func ParseMessage(data []byte) (Report, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Report{}, fmt.Errorf("invalid message: %w", err)
	}
	if probe.Type != MessageType {
		return Report{}, ErrNotResultMessage
	}

	result, err := gojsonschema.Validate(messageSchema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return Report{}, fmt.Errorf("validating message: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return Report{}, fmt.Errorf("invalid result message: %s", strings.Join(problems, "; "))
	}

	var msg resultMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Report{}, fmt.Errorf("invalid message: %w", err)
	}

	r := msg.Data
	if r.Source == "" {
		r.Source = "postMessage"
	}
	return r, nil
}
