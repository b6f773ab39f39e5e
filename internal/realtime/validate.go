package realtime

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Payload validators. Each is a pure function: it either returns a typed,
// sanitized payload or a validation error naming the offending field. No
// validator has side effects.

const (
	maxContentLen = 5000
	maxSourceLen  = 2048
	maxSources    = 20
)

// JoinPayload is the validated form of join-room.
type JoinPayload struct {
	RoomID string
}

// LeavePayload is the validated form of leave-room.
type LeavePayload struct {
	RoomID string
}

// SubmitTurnPayload is the validated form of submit-turn. Sources is nil
// when the field was absent.
type SubmitTurnPayload struct {
	RoomID  string
	Content string
	Sources []string
}

// VotePayload is the validated form of cast-vote.
type VotePayload struct {
	RoomID         string
	TargetIdentity string
}

func isValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// decodeInto rejects a malformed envelope body before any field check runs.
func decodeInto(data json.RawMessage, v any) *Error {
	if len(data) == 0 {
		return validationError("invalid payload format")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return validationError("invalid payload format")
	}
	return nil
}

// ValidateJoin checks a join-room payload.
func ValidateJoin(data json.RawMessage) (*JoinPayload, *Error) {
	var raw struct {
		RoomID string `json:"roomId"`
	}
	if err := decodeInto(data, &raw); err != nil {
		return nil, err
	}
	if !isValidID(raw.RoomID) {
		return nil, validationError("roomId must be a valid UUID")
	}
	return &JoinPayload{RoomID: raw.RoomID}, nil
}

// ValidateLeave checks a leave-room payload.
func ValidateLeave(data json.RawMessage) (*LeavePayload, *Error) {
	var raw struct {
		RoomID string `json:"roomId"`
	}
	if err := decodeInto(data, &raw); err != nil {
		return nil, err
	}
	if !isValidID(raw.RoomID) {
		return nil, validationError("roomId must be a valid UUID")
	}
	return &LeavePayload{RoomID: raw.RoomID}, nil
}

// ValidateSubmitTurn checks a submit-turn payload. Content is sanitized
// before the length bound is applied; sources are optional and stay absent
// when not supplied.
func ValidateSubmitTurn(data json.RawMessage) (*SubmitTurnPayload, *Error) {
	var raw struct {
		RoomID  string    `json:"roomId"`
		Content *string   `json:"content"`
		Sources []*string `json:"sources"`
	}
	if err := decodeInto(data, &raw); err != nil {
		return nil, err
	}
	if !isValidID(raw.RoomID) {
		return nil, validationError("roomId must be a valid UUID")
	}
	if raw.Content == nil {
		return nil, validationError("content is required")
	}

	// Bounds are in characters, not bytes; multibyte text counts per rune.
	content := SanitizeText(*raw.Content)
	if utf8.RuneCountInString(content) > maxContentLen {
		return nil, validationError(fmt.Sprintf("content must be at most %d characters", maxContentLen))
	}

	out := &SubmitTurnPayload{RoomID: raw.RoomID, Content: content}
	if raw.Sources != nil {
		if len(raw.Sources) > maxSources {
			return nil, validationError(fmt.Sprintf("sources must have at most %d entries", maxSources))
		}
		out.Sources = make([]string, 0, len(raw.Sources))
		for i, src := range raw.Sources {
			if src == nil {
				return nil, validationError(fmt.Sprintf("sources[%d] must be a string", i))
			}
			s := SanitizeText(*src)
			if utf8.RuneCountInString(s) > maxSourceLen {
				return nil, validationError(fmt.Sprintf("sources[%d] must be at most %d characters", i, maxSourceLen))
			}
			out.Sources = append(out.Sources, s)
		}
	}
	return out, nil
}

// ValidateVote checks a cast-vote payload.
func ValidateVote(data json.RawMessage) (*VotePayload, *Error) {
	var raw struct {
		RoomID         string `json:"roomId"`
		TargetIdentity string `json:"targetIdentity"`
	}
	if err := decodeInto(data, &raw); err != nil {
		return nil, err
	}
	if !isValidID(raw.RoomID) {
		return nil, validationError("roomId must be a valid UUID")
	}
	if !isValidID(raw.TargetIdentity) {
		return nil, validationError("targetIdentity must be a valid UUID")
	}
	return &VotePayload{RoomID: raw.RoomID, TargetIdentity: raw.TargetIdentity}, nil
}
