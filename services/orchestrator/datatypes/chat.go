// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides request and response types for the
// orchestrator's chat endpoints.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// MaxQuestionBytes is the maximum size of a question body. Checked in
// bytes, not runes, so oversized payloads are rejected before they reach
// the model.
const MaxQuestionBytes = 8 * 1024 // 8KB

// chatValidate is the shared validator instance for chat datatypes.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQuestionBytes
}

// QuestionRequest is the body of POST /v1/chat/user-question.
//
// # Validation
//
//   - Question: required, non-empty after binding, at most 8KB of bytes
type QuestionRequest struct {
	Question string `json:"question" binding:"required" validate:"required,maxbytes"`
}

// Validate checks the request after JSON binding.
func (r *QuestionRequest) Validate() error {
	return chatValidate.Struct(r)
}

// CreateChatResponse is the body returned by POST /v1/chat/create-chat.
type CreateChatResponse struct {
	Identity string `json:"identity"`
	Created  bool   `json:"created"`
}

// HistoryEntry is one turn in the GET /v1/chat/chat-history response.
// Type is "human" or "assistant".
type HistoryEntry struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorResponse is the uniform error body for all chat endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}
