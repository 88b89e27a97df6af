package agentrpc

import "github.com/prism/prism/internal/dispatch"

type RegisterAgentRequest struct {
	AgentID string `json:"agentId"`
	Version string `json:"version,omitempty"`
}

type RegisterAgentResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type HeartbeatRequest struct {
	AgentID string `json:"agentId"`
}

type HeartbeatResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

type UpdateTaskStatusRequest struct {
	TaskID        string `json:"taskId"`
	Status        string `json:"status"`
	Details       string `json:"details,omitempty"`
	AgentID       string `json:"agentId,omitempty"`
	GitBranch     string `json:"gitBranch,omitempty"`
	GitCommitHash string `json:"gitCommitHash,omitempty"`
	GitPRURL      string `json:"gitPrUrl,omitempty"`
}

type UpdateTaskStatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type SubscribeRequest struct {
	AgentID string `json:"agentId"`
}

// DispatchMessage is one command delivered on the Subscribe stream.
type DispatchMessage = dispatch.Message
