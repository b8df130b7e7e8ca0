package minio

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/turtacn/potencynet/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/potencynet/pkg/errors"
)

const ManifestName = "manifest.json"

// Artifact is one local file to publish.
type Artifact struct {
	Name        string
	Path        string
	ContentType string
	Kind        string // checkpoint, submission, metrics
}

// PublishedObject describes an uploaded artifact.
type PublishedObject struct {
	Name      string `json:"name"`
	Kind      string `json:"kind,omitempty"`
	Key       string `json:"key"`
	ETag      string `json:"etag"`
	Size      int64  `json:"size"`
	SHA256    string `json:"sha256"`
	VersionID string `json:"version_id,omitempty"`
}

// Manifest is written next to the artifacts of a run.
type Manifest struct {
	RunID       string            `json:"run_id"`
	Bucket      string            `json:"bucket"`
	PublishedAt time.Time         `json:"published_at"`
	Objects     []PublishedObject `json:"objects"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// ArtifactRepository publishes run outputs to object storage.
type ArtifactRepository interface {
	Publish(ctx context.Context, runID string, artifacts []Artifact, labels map[string]string) (*Manifest, error)
	List(ctx context.Context, runID string) ([]PublishedObject, error)
}

type minioRepository struct {
	client *MinIOClient
	logger logging.Logger
	now    func() time.Time
}

func NewMinIORepository(client *MinIOClient, log logging.Logger) ArtifactRepository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &minioRepository{client: client, logger: log, now: time.Now}
}

// Publish uploads every artifact under <prefix>/<runID>/ and then the
// manifest.  Artifacts are uploaded in order and the first failure aborts.
func (r *minioRepository) Publish(ctx context.Context, runID string, artifacts []Artifact, labels map[string]string) (*Manifest, error) {
	if r.client.isClosed() {
		return nil, ErrMinIOClientClosed
	}
	if runID == "" {
		return nil, errors.InvalidParam("run id is required")
	}

	manifest := &Manifest{
		RunID:       runID,
		Bucket:      r.client.Bucket(),
		PublishedAt: r.now().UTC(),
		Labels:      labels,
	}
	for _, a := range artifacts {
		obj, err := r.uploadFile(ctx, runID, a)
		if err != nil {
			return nil, err
		}
		manifest.Objects = append(manifest.Objects, *obj)
		r.logger.Info("artifact published",
			logging.String("run_id", runID),
			logging.String("key", obj.Key),
			logging.Int64("size", obj.Size))
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode manifest")
	}
	key := r.client.ObjectKey(runID, ManifestName)
	_, err = r.client.GetClient().PutObject(ctx, r.client.Bucket(), key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json", UserMetadata: map[string]string{"run-id": runID}})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArtifactPublishing, "manifest upload failed").WithDetail(key)
	}
	return manifest, nil
}

func (r *minioRepository) uploadFile(ctx context.Context, runID string, a Artifact) (*PublishedObject, error) {
	name := a.Name
	if name == "" {
		name = filepath.Base(a.Path)
	}
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArtifactPublishing, "artifact not readable").WithDetail(a.Path)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArtifactPublishing, "artifact not readable").WithDetail(a.Path)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArtifactPublishing, "artifact not readable").WithDetail(a.Path)
	}
	sum := hex.EncodeToString(h.Sum(nil))

	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	opts := minio.PutObjectOptions{
		ContentType:  contentType,
		PartSize:     r.client.config.PartSize,
		UserMetadata: map[string]string{"run-id": runID, "sha256": sum},
	}
	if a.Kind != "" {
		opts.UserTags = map[string]string{"kind": a.Kind}
	}

	key := r.client.ObjectKey(runID, name)
	info, err := r.client.GetClient().PutObject(ctx, r.client.Bucket(), key, f, size, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArtifactPublishing, "upload failed").WithDetail(key)
	}
	return &PublishedObject{
		Name:      name,
		Kind:      a.Kind,
		Key:       key,
		ETag:      info.ETag,
		Size:      size,
		SHA256:    sum,
		VersionID: info.VersionID,
	}, nil
}

// List returns the objects stored for runID, sorted by key.
func (r *minioRepository) List(ctx context.Context, runID string) ([]PublishedObject, error) {
	if r.client.isClosed() {
		return nil, ErrMinIOClientClosed
	}
	if runID == "" {
		return nil, errors.InvalidParam("run id is required")
	}
	prefix := r.client.ObjectKey(runID, "")
	var out []PublishedObject
	for obj := range r.client.GetClient().ListObjects(ctx, r.client.Bucket(), minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeArtifactPublishing, "list failed").WithDetail(prefix)
		}
		out = append(out, PublishedObject{
			Name:      obj.Key[len(prefix):],
			Key:       obj.Key,
			ETag:      obj.ETag,
			Size:      obj.Size,
			VersionID: obj.VersionID,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
