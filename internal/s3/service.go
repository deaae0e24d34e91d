package s3

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/condobill/condobill/internal/clock"
	"github.com/condobill/condobill/internal/config"
	"github.com/condobill/condobill/internal/docstore"
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/logger"
)

// listPageSize bounds each listing page during the export walk.
const listPageSize = 500

// Service exports every core document to a durable object store as one
// timestamped tar.gz archive.
type Service interface {
	Run(ctx context.Context) (*Result, error)
}

type backupService struct {
	client *s3.Client
	store  docstore.Store
	cfg    *config.BackupConfig
	clock  clock.Clock
	logger *logger.Logger
}

// NewService returns nil when backups are disabled; callers treat a nil
// service as "skip the task".
func NewService(cfg *config.Configuration, store docstore.Store, clk clock.Clock, logger *logger.Logger) (Service, error) {
	if !cfg.Backup.Enabled {
		return nil, nil
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(context.Background(),
		awsConfig.WithRegion(cfg.Backup.Region),
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to load AWS configuration for backups").
			Mark(ierr.ErrSystem)
	}

	return &backupService{
		client: s3.NewFromConfig(awsCfg),
		store:  store,
		cfg:    &cfg.Backup,
		clock:  clk,
		logger: logger,
	}, nil
}

func (s *backupService) Run(ctx context.Context) (*Result, error) {
	started := s.clock.Now()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	documents := 0
	for _, prefix := range []string{docstore.ClientsPrefix(), "system/"} {
		n, err := s.exportPrefix(ctx, tw, prefix, started)
		if err != nil {
			return nil, err
		}
		documents += n
	}

	if err := tw.Close(); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrSystem)
	}
	if err := gz.Close(); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrSystem)
	}

	key := fmt.Sprintf("backup-%s.tar.gz", started.UTC().Format("2006-01-02T150405Z"))
	if s.cfg.KeyPrefix != "" {
		key = fmt.Sprintf("%s/%s", s.cfg.KeyPrefix, key)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/gzip"),
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Failed to upload backup to bucket %s", s.cfg.Bucket).
			Mark(ierr.ErrTransient)
	}

	result := &Result{
		Bucket:    s.cfg.Bucket,
		Key:       key,
		Documents: documents,
		Bytes:     int64(buf.Len()),
		StartedAt: started,
		Duration:  s.clock.Now().Sub(started),
	}
	s.logger.Infow("uploaded backup archive",
		"key", key,
		"documents", documents,
		"bytes", result.Bytes)
	return result, nil
}

// exportPrefix walks one path prefix page by page, streaming each
// document into the archive as <path>.json.
func (s *backupService) exportPrefix(ctx context.Context, tw *tar.Writer, prefix string, modTime time.Time) (int, error) {
	documents := 0
	cursor := ""
	for {
		entries, err := s.store.List(ctx, prefix, docstore.ListOptions{
			StartAfter: cursor,
			Limit:      listPageSize,
		})
		if err != nil {
			return documents, err
		}
		if len(entries) == 0 {
			return documents, nil
		}

		for _, e := range entries {
			hdr := &tar.Header{
				Name:    e.Path + ".json",
				Mode:    0o644,
				Size:    int64(len(e.Data)),
				ModTime: modTime,
			}
			if err := tw.WriteHeader(hdr); err != nil {
				return documents, ierr.WithError(err).Mark(ierr.ErrSystem)
			}
			if _, err := tw.Write(e.Data); err != nil {
				return documents, ierr.WithError(err).Mark(ierr.ErrSystem)
			}
			documents++
		}

		if len(entries) < listPageSize {
			return documents, nil
		}
		cursor = entries[len(entries)-1].Path
	}
}
