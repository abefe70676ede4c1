package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Data-layer sentinels. ErrIsOwner guards the group owner's standing:
// the membership mutators return it, without writing, whenever the
// target user is the group's owner.
var (
	ErrIsOwner  = errors.New("membership belongs to the group owner")
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// Session issuer sentinels.
var (
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrNotAMember    = errors.New("not a member of the group")
	ErrGroupNotFound = errors.New("group not found")
)

// APIError is the JSON error body for every non-2xx response.
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("write json", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIError{
		Code:    code,
		Message: message,
	})
}
