package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-units"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	providerDocker = "docker"

	labelInstance  = "ctf.instance"
	labelContainer = "ctf.container"
)

// DockerConfig groups docker provider settings.
type DockerConfig struct {
	Host       string
	Network    string
	BaseDomain string
	Logger     zerolog.Logger
}

// DockerClient runs instance containers on a single docker engine. Routing is
// expressed through traefik labels so the hostnames match the generated links.
type DockerClient struct {
	client *client.Client
	cfg    DockerConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewDockerClient constructs a docker backed provider.
func NewDockerClient(cfg DockerConfig) (*DockerClient, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if cfg.Network == "" {
		cfg.Network = "bridge"
	}

	return &DockerClient{
		client: cli,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/ctf-go-api/pkg/orchestrator"),
		logger: cfg.Logger.With().Str("component", "orchestrator_docker").Logger(),
	}, nil
}

// Provision pulls and starts every container of the instance. Containers started
// before a failure are removed again.
func (d *DockerClient) Provision(parent context.Context, instanceID string, values Values) (err error) {
	ctx, span := d.tracer.Start(parent, "orchestrator.docker.provision", trace.WithAttributes(
		attribute.String("ctf.instance_id", instanceID),
		attribute.Int("ctf.containers", len(values.Containers)),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(providerDocker, "provision").Observe(time.Since(start).Seconds())
		if err != nil {
			requestFailures.WithLabelValues(providerDocker, "provision").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	baseDomain := values.Global.BaseDomain
	if baseDomain == "" {
		baseDomain = d.cfg.BaseDomain
	}

	for index, spec := range values.Containers {
		if err = d.startContainer(ctx, instanceID, index, spec, baseDomain, values.Labels); err != nil {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if cleanupErr := d.removeInstance(cleanupCtx, instanceID); cleanupErr != nil {
				d.logger.Error().Err(cleanupErr).Str("instance_id", instanceID).Msg("failed to clean up partial instance")
			}
			cancel()
			return err
		}
	}

	d.logger.Info().Str("instance_id", instanceID).Int("containers", len(values.Containers)).Msg("instance containers started")
	return nil
}

// Teardown force-removes every container labelled with the instance id.
func (d *DockerClient) Teardown(parent context.Context, instanceID string) error {
	ctx, span := d.tracer.Start(parent, "orchestrator.docker.teardown", trace.WithAttributes(
		attribute.String("ctf.instance_id", instanceID),
	))
	defer span.End()

	start := time.Now()
	err := d.removeInstance(ctx, instanceID)
	requestDuration.WithLabelValues(providerDocker, "teardown").Observe(time.Since(start).Seconds())
	if err != nil {
		requestFailures.WithLabelValues(providerDocker, "teardown").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

// Close shuts down the underlying docker client.
func (d *DockerClient) Close() error {
	if d.client == nil {
		return nil
	}
	return d.client.Close()
}

func (d *DockerClient) startContainer(ctx context.Context, instanceID string, index int, spec Container, baseDomain string, extra map[string]string) error {
	if spec.Image == "" {
		return errors.New("container image is required")
	}

	reader, err := d.client.ImagePull(ctx, spec.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("image pull %s: %w", spec.Image, err)
	}
	_, _ = io.Copy(io.Discard, reader)
	_ = reader.Close()

	resources, err := dockerResources(spec.Resources)
	if err != nil {
		return err
	}

	config := &container.Config{
		Image:  spec.Image,
		Env:    dockerEnv(spec.Envs),
		Labels: routingLabels(instanceID, spec, baseDomain, extra),
	}

	hostCfg := &container.HostConfig{
		NetworkMode:   container.NetworkMode(d.cfg.Network),
		Resources:     resources,
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyOnFailure, MaximumRetryCount: 3},
	}

	resp, err := d.client.ContainerCreate(ctx, config, hostCfg, &network.NetworkingConfig{}, nil, dockerContainerName(instanceID, index, spec.Name))
	if err != nil {
		return fmt.Errorf("container create: %w", err)
	}

	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("container start: %w", err)
	}

	return nil
}

func (d *DockerClient) removeInstance(ctx context.Context, instanceID string) error {
	containers, err := d.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", labelInstance+"="+instanceID)),
	})
	if err != nil {
		return fmt.Errorf("container list: %w", err)
	}

	var errs []error
	for _, item := range containers {
		if err := d.client.ContainerRemove(ctx, item.ID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			errs = append(errs, fmt.Errorf("container remove %s: %w", item.ID, err))
		}
	}

	return errors.Join(errs...)
}

func dockerContainerName(instanceID string, index int, name string) string {
	if name == "" {
		return fmt.Sprintf("%s-%d", instanceID, index)
	}
	return instanceID + "-" + name
}

func dockerEnv(envs []Env) []string {
	result := make([]string, 0, len(envs))
	for _, env := range envs {
		result = append(result, env.Name+"="+env.Value)
	}
	return result
}

func routingLabels(instanceID string, spec Container, baseDomain string, extra map[string]string) map[string]string {
	labels := make(map[string]string, len(extra)+2+len(spec.Ports)*3)
	for key, value := range extra {
		labels[key] = value
	}
	labels[labelInstance] = instanceID
	labels[labelContainer] = spec.Name

	if len(spec.Ports) > 0 {
		labels["traefik.enable"] = "true"
	}

	for _, port := range spec.Ports {
		host := Hostname(port.Domain, spec.Name, instanceID, baseDomain)
		router := strings.ReplaceAll(host, ".", "-")
		number := strconv.Itoa(port.Number)

		switch port.Protocol {
		case "tcp":
			labels["traefik.tcp.routers."+router+".rule"] = "HostSNI(`" + host + "`)"
			labels["traefik.tcp.routers."+router+".tls"] = "true"
			labels["traefik.tcp.routers."+router+".service"] = router
			labels["traefik.tcp.services."+router+".loadbalancer.server.port"] = number
		default:
			labels["traefik.http.routers."+router+".rule"] = "Host(`" + host + "`)"
			labels["traefik.http.routers."+router+".tls"] = "true"
			labels["traefik.http.routers."+router+".service"] = router
			labels["traefik.http.services."+router+".loadbalancer.server.port"] = number
		}
	}

	return labels
}

func dockerResources(resources Resources) (container.Resources, error) {
	var result container.Resources

	if resources.Limits.CPU != "" {
		nano, err := parseCPU(resources.Limits.CPU)
		if err != nil {
			return result, err
		}
		result.NanoCPUs = nano
	}

	if resources.Limits.Memory != "" {
		bytes, err := memoryBytes(resources.Limits.Memory)
		if err != nil {
			return result, fmt.Errorf("invalid memory limit %q: %w", resources.Limits.Memory, err)
		}
		result.Memory = bytes
	}

	if resources.Requests.Memory != "" {
		bytes, err := memoryBytes(resources.Requests.Memory)
		if err != nil {
			return result, fmt.Errorf("invalid memory request %q: %w", resources.Requests.Memory, err)
		}
		result.MemoryReservation = bytes
	}

	return result, nil
}

// memoryBytes accepts kubernetes binary suffixes ("128Mi") alongside the
// docker forms ("128m", "128MiB").
func memoryBytes(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if strings.HasSuffix(value, "i") || strings.HasSuffix(value, "I") {
		value += "B"
	}
	return units.RAMInBytes(value)
}

// parseCPU converts "500m" or "1.5" into docker nano cpus.
func parseCPU(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if strings.HasSuffix(value, "m") {
		milli, err := strconv.ParseInt(strings.TrimSuffix(value, "m"), 10, 64)
		if err != nil || milli <= 0 {
			return 0, fmt.Errorf("invalid cpu quantity %q", value)
		}
		return milli * 1_000_000, nil
	}

	cores, err := strconv.ParseFloat(value, 64)
	if err != nil || cores <= 0 {
		return 0, fmt.Errorf("invalid cpu quantity %q", value)
	}
	return int64(cores * 1e9), nil
}
