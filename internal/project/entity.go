package project

import "time"

type Project struct {
	ID          string    `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description" json:"description"`
	RepoURL     string    `yaml:"repo_url" json:"repoUrl"`
	CreatedAt   time.Time `yaml:"created_at" json:"createdAt"`
}
