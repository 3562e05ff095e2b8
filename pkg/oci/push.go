// Package oci publishes export output directories as OCI artifacts so
// measurement results can be archived in a container registry alongside
// the images that produced them.
package oci

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	oras "oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content/file"
	"oras.land/oras-go/v2/registry"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/retry"

	chiroperrors "github.com/grid5000/chiropctl/pkg/errors"
)

const (
	// ArtifactType marks pushed export artifacts in the registry.
	ArtifactType = "application/vnd.grid5000.chirop.export.v1"

	csvMediaType     = "text/csv"
	defaultMediaType = "application/octet-stream"
)

// Pusher uploads artifact directories to a remote registry.
type Pusher struct {
	plainHTTP   bool
	insecureTLS bool
	username    string
	password    string
}

// Option customizes a Pusher.
type Option func(*Pusher)

// WithPlainHTTP talks to the registry over HTTP instead of HTTPS, for
// in-cluster registries without TLS.
func WithPlainHTTP() Option {
	return func(p *Pusher) {
		p.plainHTTP = true
	}
}

// WithInsecureTLS skips TLS certificate verification, for registries
// with self-signed certificates.
func WithInsecureTLS() Option {
	return func(p *Pusher) {
		p.insecureTLS = true
	}
}

// WithCredentials sets basic-auth credentials for the registry.
func WithCredentials(username, password string) Option {
	return func(p *Pusher) {
		p.username = username
		p.password = password
	}
}

// New creates a Pusher.
func New(opts ...Option) *Pusher {
	p := &Pusher{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PushDirectory packs every regular file under dir into an OCI artifact
// and pushes it to reference, e.g. "registry.local:5000/power/gros:run-3".
// It returns the manifest digest.
func (p *Pusher) PushDirectory(ctx context.Context, dir, reference string) (string, error) {
	ref, err := registry.ParseReference(reference)
	if err != nil {
		return "", chiroperrors.Wrap(err, chiroperrors.ErrCodeValidation,
			fmt.Sprintf("invalid artifact reference %q", reference))
	}
	tag := ref.Reference
	if tag == "" {
		tag = "latest"
	}

	store, err := file.New(dir)
	if err != nil {
		return "", fmt.Errorf("failed to create file store for %q: %w", dir, err)
	}
	defer store.Close()

	descriptors, err := addFiles(ctx, store, dir)
	if err != nil {
		return "", err
	}
	if len(descriptors) == 0 {
		return "", chiroperrors.Newf(chiroperrors.ErrCodeValidation,
			"directory %q has no files to push", dir)
	}

	packOpts := oras.PackManifestOptions{
		Layers: descriptors,
	}
	manifestDescriptor, err := oras.PackManifest(ctx, store, oras.PackManifestVersion1_1, ArtifactType, packOpts)
	if err != nil {
		return "", fmt.Errorf("failed to pack manifest: %w", err)
	}
	if err := store.Tag(ctx, manifestDescriptor, tag); err != nil {
		return "", fmt.Errorf("failed to tag manifest: %w", err)
	}

	repository, err := remote.NewRepository(ref.Registry + "/" + ref.Repository)
	if err != nil {
		return "", chiroperrors.Wrap(err, chiroperrors.ErrCodeValidation,
			fmt.Sprintf("invalid repository in %q", reference))
	}
	repository.PlainHTTP = p.plainHTTP
	repository.Client = p.authClient(ref.Registry)

	if _, err := oras.Copy(ctx, store, tag, repository, tag, oras.DefaultCopyOptions); err != nil {
		return "", chiroperrors.Wrap(err, chiroperrors.ErrCodeRepoUnreachable,
			fmt.Sprintf("failed to push %q", reference))
	}

	slog.Info("pushed artifact",
		slog.String("reference", reference),
		slog.Int("files", len(descriptors)),
		slog.String("digest", manifestDescriptor.Digest.String()))
	return manifestDescriptor.Digest.String(), nil
}

func (p *Pusher) authClient(registryHost string) *auth.Client {
	base := retry.DefaultClient
	if p.insecureTLS {
		base = &http.Client{
			Transport: retry.NewTransport(&http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			}),
		}
	}
	client := &auth.Client{
		Client: base,
		Cache:  auth.DefaultCache,
	}
	if p.username != "" {
		client.Credential = auth.StaticCredential(registryHost, auth.Credential{
			Username: p.username,
			Password: p.password,
		})
	}
	return client
}

// addFiles registers every regular file in dir (non-recursive) with the
// file store. Export output is flat, so subdirectories are skipped.
func addFiles(ctx context.Context, store *file.Store, dir string) ([]ocispec.Descriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %q: %w", dir, err)
	}

	var descriptors []ocispec.Descriptor
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		mediaType := defaultMediaType
		if filepath.Ext(entry.Name()) == ".csv" {
			mediaType = csvMediaType
		}
		desc, err := store.Add(ctx, entry.Name(), mediaType, filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to add %q to artifact: %w", entry.Name(), err)
		}
		descriptors = append(descriptors, desc)
	}
	return descriptors, nil
}
