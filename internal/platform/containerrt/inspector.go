// Package containerrt is a thin Docker SDK wrapper used exclusively as the
// image inspector dependency SPEC_FULL.md names (§4.D, §4.E, §9): the hub
// never drives a container's lifecycle through this client (that is
// agent_cli's job, invoked via internal/platform/procrunner). It only asks
// the image store whether a tag exists, lists tags it remembers, and
// removes them on clean_start.
//
// Grounded on kandev's internal/agent/docker.Client construction and list
// helpers, trimmed down from its full container-lifecycle surface.
package containerrt

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	"github.com/agenthub/hub/internal/platform/config"
	"github.com/agenthub/hub/internal/platform/logger"
	"go.uber.org/zap"
)

// Inspector checks image existence and prunes stale tags. It deliberately
// exposes no container create/start/stop methods.
type Inspector struct {
	cli *client.Client
	log *logger.Logger
}

// New connects to the configured Docker host. A configured API version pins
// the client to that version; otherwise the version is negotiated.
func New(cfg config.DockerConfig, log *logger.Logger) (*Inspector, error) {
	if log == nil {
		log = logger.Default()
	}
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	if cfg.APIVersion != "" {
		opts = append(opts, client.WithVersion(cfg.APIVersion))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Inspector{cli: cli, log: log}, nil
}

// Close releases the underlying Docker client connection.
func (i *Inspector) Close() error {
	return i.cli.Close()
}

// Exists reports whether tag is present in the local image store (§4.D
// "a tag already present in the image store is considered cached").
func (i *Inspector) Exists(ctx context.Context, tag string) (bool, error) {
	_, err := i.cli.ImageInspect(ctx, tag)
	if err == nil {
		return true, nil
	}
	if client.IsErrNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("inspect image %s: %w", tag, err)
}

// RemoveByReference removes a single image tag, best-effort (§4.E
// clean_start: "schedule image cleanup of the remembered tags (best-effort)").
func (i *Inspector) RemoveByReference(ctx context.Context, tag string) error {
	_, err := i.cli.ImageRemove(ctx, tag, image.RemoveOptions{Force: true, PruneChildren: true})
	if err != nil && !client.IsErrNotFound(err) {
		i.log.Warn("image removal failed", zap.String("tag", tag), zap.Error(err))
		return err
	}
	return nil
}

// ListByLabel returns image tags carrying the given label=value pair, used
// to discover every setup-snapshot image the hub has ever built.
func (i *Inspector) ListByLabel(ctx context.Context, label, value string) ([]string, error) {
	f := filters.NewArgs()
	f.Add("label", fmt.Sprintf("%s=%s", label, value))

	images, err := i.cli.ImageList(ctx, image.ListOptions{Filters: f})
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}

	var tags []string
	for _, img := range images {
		tags = append(tags, img.RepoTags...)
	}
	return tags, nil
}

// Ping checks whether the Docker daemon is reachable.
func (i *Inspector) Ping(ctx context.Context) error {
	_, err := i.cli.Ping(ctx)
	return err
}
