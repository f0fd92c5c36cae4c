// Package publish builds the workspace into a single-layer audit image
// and pushes it to the configured registry.
package publish

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	imagetypes "github.com/moby/moby/api/types/image"
	"github.com/moby/moby/client"
	"github.com/sirupsen/logrus"

	"github.com/crucible-eval/crucible/internal/workspace"
)

var logger = logrus.WithFields(logrus.Fields{
	"app":       "crucible",
	"component": "publish",
})

// Artifact identifies a published image. SizeBytes is the real image
// size; a zero-size artifact is still distinct from no artifact at all.
type Artifact struct {
	Image     string
	SizeBytes int64
}

type Publisher struct {
	registry string
}

// New returns a publisher pushing under the given registry identity.
func New(registry string) *Publisher {
	return &Publisher{registry: registry}
}

// Tag is the image reference for a job's artifact.
func (p *Publisher) Tag(jobID string) string {
	return fmt.Sprintf("%s/jobs:%s", p.registry, jobID)
}

// Publish builds the workspace root (using the descriptor written at
// sandbox time), resolves the built image's id and size, and pushes the
// tag. Failures are job-fatal for the artifact only; the caller still
// reports the already-computed result without artifact metadata.
func (p *Publisher) Publish(ctx context.Context, ws *workspace.Workspace, jobID string) (*Artifact, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	defer cli.Close()

	tag := p.Tag(jobID)
	log := logger.WithFields(logrus.Fields{"job_id": jobID, "tag": tag})

	buildCtx, err := tarDirectory(ws.Root)
	if err != nil {
		return nil, fmt.Errorf("building context from %s: %w", ws.Root, err)
	}
	buildResp, err := cli.ImageBuild(ctx, buildCtx, client.ImageBuildOptions{
		Tags:   []string{tag},
		Remove: true,
	})
	if err != nil {
		return nil, fmt.Errorf("building image %s: %w", tag, err)
	}
	// Drain to completion; the build runs as long as the body streams.
	if _, err := io.Copy(io.Discard, buildResp.Body); err != nil {
		buildResp.Body.Close()
		return nil, fmt.Errorf("streaming build of %s: %w", tag, err)
	}
	buildResp.Body.Close()

	inspect, err := cli.ImageInspect(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("inspecting image %s: %w", tag, err)
	}

	log.WithField("size", inspect.Size).Info("pushing artifact image")
	pushResp, err := cli.ImagePush(ctx, tag, client.ImagePushOptions{})
	if err != nil {
		return nil, fmt.Errorf("pushing image %s: %w", tag, err)
	}
	defer pushResp.Close()
	if _, err := io.Copy(io.Discard, pushResp); err != nil {
		return nil, fmt.Errorf("streaming push of %s: %w", tag, err)
	}

	return artifactFrom(tag, inspect.InspectResponse), nil
}

// artifactFrom derives the registry/tag@digest reference and size the
// job report carries.
func artifactFrom(tag string, inspect imagetypes.InspectResponse) *Artifact {
	return &Artifact{
		Image:     fmt.Sprintf("%s@%s", tag, inspect.ID),
		SizeBytes: inspect.Size,
	}
}

// tarDirectory packs root into an in-memory tar stream for use as a
// docker build context. Workspace contents are small by construction:
// the exchange directories plus the manifest and descriptor.
func tarDirectory(root string) (io.Reader, error) {
	pr, pw := io.Pipe()
	tw := tar.NewWriter(pw)
	go func() {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if path == root {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			hdr.Name = rel
			if info.IsDir() {
				hdr.Name += "/"
			}
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			if info.Mode().IsRegular() {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				if _, err := io.Copy(tw, f); err != nil {
					return err
				}
			}
			return nil
		})
		if err == nil {
			err = tw.Close()
		}
		pw.CloseWithError(err)
	}()
	return pr, nil
}
