package model

import "strings"

// Inbound payloads use the frontend's field names. The json tags on the
// Upstream* types carry the names the backends expect.

// SendCodeInput is the body of POST /api/auth/send-code.
type SendCodeInput struct {
	Email string `json:"email"`
}

// VerifyInput is the body of POST /api/auth/verify.
type VerifyInput struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// VerifyResult is the part of the auth service's verify response the gateway reads.
type VerifyResult struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

// ChatInput is the body of the chat and consult routes.
type ChatInput struct {
	UserInput      string `json:"userInput"`
	ConversationID string `json:"conversationId"`
	ProjectID      string `json:"projectId"`
}

// UpstreamChat is the core API's chat request.
type UpstreamChat struct {
	ChatKey        string `json:"chat_key,omitempty"`
	UserInput      string `json:"user_input"`
	ConversationID string `json:"conversation_id"`
	ProjectID      string `json:"project_id,omitempty"`
}

// AgentInput is the body of POST /api/dbml-ai-agent/stream. The frontend
// already uses the backend's names, so it is forwarded as-is.
type AgentInput struct {
	Prompt         string `json:"prompt"`
	ConversationID string `json:"conversation_id"`
	ProjectID      string `json:"project_id"`
}

// GenerateInput is the body of POST /api/generate. Two frontend generations
// send it: the form uses backend_option/user_input, the scaffold hook uses
// framework/dbml_code.
type GenerateInput struct {
	ProjectName   string   `json:"project_name"`
	BackendOption string   `json:"backend_option"`
	Framework     string   `json:"framework"`
	Features      []string `json:"features"`
	UserInput     string   `json:"user_input"`
	DBMLCode      string   `json:"dbml_code"`
}

// UpstreamGenerate is the core API's /generate request.
type UpstreamGenerate struct {
	ProjectName   string   `json:"project_name"`
	DatabaseName  string   `json:"database_name"`
	BackendOption string   `json:"backend_option"`
	Features      []string `json:"features"`
	UserInput     string   `json:"user_input"`
}

// ToUpstream resolves field aliases and derives the database name.
func (in GenerateInput) ToUpstream() UpstreamGenerate {
	backend := in.BackendOption
	if backend == "" {
		backend = in.Framework
	}
	schema := in.UserInput
	if schema == "" {
		schema = in.DBMLCode
	}
	features := in.Features
	if features == nil {
		features = []string{}
	}
	return UpstreamGenerate{
		ProjectName:   in.ProjectName,
		DatabaseName:  DatabaseName(in.ProjectName),
		BackendOption: backend,
		Features:      features,
		UserInput:     schema,
	}
}

// DatabaseName derives the generated project's database name: spaces become
// underscores and "_db" is appended.
func DatabaseName(projectName string) string {
	return strings.ReplaceAll(projectName, " ", "_") + "_db"
}

// OAuthCodeInput is the body of POST /api/github/access_token.
type OAuthCodeInput struct {
	Code string `json:"code"`
}

// ErrorBody is the uniform error shape returned to clients.
type ErrorBody struct {
	Error string `json:"error"`
}
