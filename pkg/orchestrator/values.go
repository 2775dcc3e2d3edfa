// Package orchestrator talks to the systems that run challenge containers.
package orchestrator

import (
	"context"
	"fmt"
)

// Client provisions and removes the containers of a challenge instance.
type Client interface {
	Provision(ctx context.Context, instanceID string, values Values) error
	Teardown(ctx context.Context, instanceID string) error
}

// Values is the deployment request body sent for an instance.
type Values struct {
	Global           Global            `json:"global"`
	Labels           map[string]string `json:"labels"`
	ImagePullSecrets []string          `json:"imagePullSecrets"`
	Containers       []Container       `json:"containers"`
}

// Global carries cluster wide routing settings.
type Global struct {
	BaseDomain string `json:"baseDomain"`
	TLSCert    string `json:"tlsCert"`
}

// Container is a fully expanded container definition.
type Container struct {
	Image                string    `json:"image"`
	Name                 string    `json:"name,omitempty"`
	AllowExternalNetwork bool      `json:"allowExternalNetwork"`
	Envs                 []Env     `json:"envs"`
	Ports                []Port    `json:"ports"`
	Resources            Resources `json:"resources"`
}

// Env is a single environment variable.
type Env struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Port is an exposed container port.
type Port struct {
	Number   int    `json:"number"`
	Protocol string `json:"protocol"`
	Domain   string `json:"domain,omitempty"`
}

// Resources groups requests and limits.
type Resources struct {
	Requests Quantity `json:"requests"`
	Limits   Quantity `json:"limits"`
}

// Validate reports quantities the docker provider cannot parse.
func (r Resources) Validate() error {
	_, err := dockerResources(r)
	return err
}

// Quantity is a cpu/memory pair.
type Quantity struct {
	CPU    string `json:"cpu"`
	Memory string `json:"memory"`
}

// StatusError reports an unexpected orchestrator response.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("orchestrator %s returned status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("orchestrator %s returned status %d: %s", e.Operation, e.StatusCode, e.Body)
}
