package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/ctf-go-api/internal/dto"
	"github.com/noah-isme/ctf-go-api/internal/models"
	"github.com/noah-isme/ctf-go-api/pkg/orchestrator"
)

const (
	instanceIDLength     = 8
	instanceIDFirstChars = "abcdefghijklmnopqrstuvwxyz"
	instanceIDChars      = "abcdefghijklmnopqrstuvwxyz0123456789"

	flagEnvName = "FLAG"

	defaultCPU    = "100m"
	defaultMemory = "128Mi"
)

var (
	// ErrDuplicateContainerName indicates two containers of a template share a name.
	ErrDuplicateContainerName = errors.New("duplicate container name")
	// ErrDuplicateDomain indicates two ports of a container share a routing domain.
	ErrDuplicateDomain = errors.New("duplicate port domain")
	// ErrInvalidContainerName indicates a container name that cannot be used in hostnames.
	ErrInvalidContainerName = errors.New("invalid container name")
	// ErrInvalidResources indicates cpu or memory quantities the orchestrator cannot parse.
	ErrInvalidResources = errors.New("invalid resource quantity")
	// ErrInvalidPort indicates a port number or protocol outside the supported range.
	ErrInvalidPort = errors.New("invalid port")
	// ErrSubdomainTooLong indicates a generated hostname label exceeds the DNS limit.
	ErrSubdomainTooLong = errors.New("generated subdomain too long")
)

var (
	containerNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
	portDomainPattern    = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)
)

// DeploySettings carries the cluster wide values merged into every deployment.
type DeploySettings struct {
	BaseDomain         string
	TLSCert            string
	ImagePullSecrets   []string
	MaxSubdomainLength int
}

// ValidateDeployTemplate rejects templates the orchestrator cannot route. Unnamed
// containers share the empty name and ports without a domain share the empty domain.
func ValidateDeployTemplate(template models.DeployTemplate) error {
	names := make(map[string]struct{}, len(template.Containers))
	for _, container := range template.Containers {
		if _, exists := names[container.Name]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateContainerName, displayName(container.Name, "unnamed"))
		}
		names[container.Name] = struct{}{}

		if container.Name != "" && !containerNamePattern.MatchString(container.Name) {
			return fmt.Errorf("%w: %s", ErrInvalidContainerName, container.Name)
		}

		if err := resolveResources(container.Resources).Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResources, err)
		}

		domains := make(map[string]struct{}, len(container.Ports))
		for _, port := range container.Ports {
			if _, exists := domains[port.Domain]; exists {
				return fmt.Errorf("%w: %s", ErrDuplicateDomain, displayName(port.Domain, "no domain"))
			}
			domains[port.Domain] = struct{}{}

			if port.Domain != "" && !portDomainPattern.MatchString(port.Domain) {
				return fmt.Errorf("%w: domain %q", ErrInvalidPort, port.Domain)
			}

			if port.Number < 1 || port.Number > 65535 {
				return fmt.Errorf("%w: number %d", ErrInvalidPort, port.Number)
			}
			if port.Protocol != "http" && port.Protocol != "tcp" {
				return fmt.Errorf("%w: protocol %q", ErrInvalidPort, port.Protocol)
			}
		}
	}

	return nil
}

// GenerateContainerLinks maps every declared port to its public endpoint, in template order.
func GenerateContainerLinks(template models.DeployTemplate, instanceID, baseDomain string) []dto.Link {
	links := make([]dto.Link, 0)
	for _, container := range template.Containers {
		for _, port := range container.Ports {
			links = append(links, dto.Link{
				URL:      orchestrator.Hostname(port.Domain, container.Name, instanceID, baseDomain),
				Protocol: port.Protocol,
			})
		}
	}

	return links
}

// BuildDeployValues validates the template and expands it into the orchestrator request.
// The instance flag is injected into every container as FLAG.
func BuildDeployValues(template models.DeployTemplate, instanceID, flag string, settings DeploySettings) (orchestrator.Values, error) {
	if err := ValidateDeployTemplate(template); err != nil {
		return orchestrator.Values{}, err
	}

	pullSecrets := make([]string, 0, len(settings.ImagePullSecrets)+len(template.ImagePullSecrets))
	pullSecrets = append(pullSecrets, settings.ImagePullSecrets...)
	pullSecrets = append(pullSecrets, template.ImagePullSecrets...)

	values := orchestrator.Values{
		Global: orchestrator.Global{
			BaseDomain: settings.BaseDomain,
			TLSCert:    settings.TLSCert,
		},
		Labels:           map[string]string{},
		ImagePullSecrets: pullSecrets,
		Containers:       make([]orchestrator.Container, 0, len(template.Containers)),
	}

	for _, container := range template.Containers {
		ports := make([]orchestrator.Port, 0, len(container.Ports))
		for _, port := range container.Ports {
			if settings.MaxSubdomainLength > 0 {
				label := orchestrator.HostLabel(port.Domain, container.Name, instanceID)
				if len(label) > settings.MaxSubdomainLength {
					return orchestrator.Values{}, fmt.Errorf("%w: %s", ErrSubdomainTooLong, label)
				}
			}
			ports = append(ports, orchestrator.Port{
				Number:   port.Number,
				Protocol: port.Protocol,
				Domain:   port.Domain,
			})
		}

		values.Containers = append(values.Containers, orchestrator.Container{
			Image:                container.Image,
			Name:                 container.Name,
			AllowExternalNetwork: container.AllowExternalNetwork,
			Envs:                 mergeEnvs(container.Envs, flag),
			Ports:                ports,
			Resources:            resolveResources(container.Resources),
		})
	}

	return values, nil
}

// GenerateInstanceID returns an 8 character id whose first character is a letter.
func GenerateInstanceID() (string, error) {
	var builder strings.Builder
	builder.Grow(instanceIDLength)

	for i := 0; i < instanceIDLength; i++ {
		alphabet := instanceIDChars
		if i == 0 {
			alphabet = instanceIDFirstChars
		}
		index, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", fmt.Errorf("generate instance id: %w", err)
		}
		builder.WriteByte(alphabet[index.Int64()])
	}

	return builder.String(), nil
}

// GenerateInstanceFlag returns a fresh per-instance flag such as flag{3f2c...}.
func GenerateInstanceFlag(prefix string) string {
	if prefix == "" {
		prefix = "flag"
	}
	return fmt.Sprintf("%s{%s}", prefix, strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func mergeEnvs(envs []models.EnvVar, flag string) []orchestrator.Env {
	merged := make([]orchestrator.Env, 0, len(envs)+1)
	for _, env := range envs {
		if env.Name == flagEnvName {
			continue
		}
		merged = append(merged, orchestrator.Env{Name: env.Name, Value: env.Value})
	}

	if flag != "" {
		merged = append(merged, orchestrator.Env{Name: flagEnvName, Value: flag})
	}

	return merged
}

func resolveResources(profile *models.ResourceProfile) orchestrator.Resources {
	resources := orchestrator.Resources{
		Requests: orchestrator.Quantity{CPU: defaultCPU, Memory: defaultMemory},
		Limits:   orchestrator.Quantity{CPU: defaultCPU, Memory: defaultMemory},
	}
	if profile == nil {
		return resources
	}

	if profile.Requests != nil {
		resources.Requests = mergeQuantity(resources.Requests, *profile.Requests)
		resources.Limits = resources.Requests
	}
	if profile.Limits != nil {
		resources.Limits = mergeQuantity(resources.Limits, *profile.Limits)
	}

	return resources
}

func mergeQuantity(base orchestrator.Quantity, override models.ResourceQuantity) orchestrator.Quantity {
	if override.CPU != "" {
		base.CPU = override.CPU
	}
	if override.Memory != "" {
		base.Memory = override.Memory
	}
	return base
}

func displayName(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
