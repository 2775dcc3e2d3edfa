package orchestrator

import "strings"

// Hostname builds the public host of a port: the non-empty fragments among the
// port domain, the container name and the instance id joined by "-", below baseDomain.
func Hostname(domain, containerName, instanceID, baseDomain string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{domain, containerName, instanceID} {
		if part != "" {
			parts = append(parts, part)
		}
	}

	return strings.Join(parts, "-") + "." + baseDomain
}

// HostLabel returns the left-most DNS label of a port's hostname.
func HostLabel(domain, containerName, instanceID string) string {
	return strings.TrimSuffix(Hostname(domain, containerName, instanceID, ""), ".")
}
