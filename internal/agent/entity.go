package agent

import "time"

// Capabilities are advisory flags describing what an agent may do.
type Capabilities struct {
	CanWriteCode       bool `yaml:"can_write_code" json:"canWriteCode"`
	CanRunTests        bool `yaml:"can_run_tests" json:"canRunTests"`
	CanDeploy          bool `yaml:"can_deploy" json:"canDeploy"`
	CanCreateDocuments bool `yaml:"can_create_documents" json:"canCreateDocuments"`
	CanMergePR         bool `yaml:"can_merge_pr" json:"canMergePr"`
}

// DefaultCapabilities applies when a create request leaves a flag out.
var DefaultCapabilities = Capabilities{
	CanWriteCode:       true,
	CanRunTests:        true,
	CanCreateDocuments: true,
}

type Agent struct {
	ID           string       `yaml:"id" json:"id"`
	Name         string       `yaml:"name" json:"name"`
	Role         string       `yaml:"role" json:"role"`
	Description  string       `yaml:"description" json:"description"`
	ModelName    string       `yaml:"model_name" json:"modelName"`
	Capabilities Capabilities `yaml:"capabilities" json:"capabilities"`
	CreatedAt    time.Time    `yaml:"created_at" json:"createdAt"`
	UpdatedAt    time.Time    `yaml:"updated_at" json:"updatedAt"`
}
