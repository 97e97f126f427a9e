// Package pipeline runs a job end to end: workspace, generation, archive,
// delivery and cleanup.
package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/example/promptpack/api-go/internal/archive"
	"github.com/example/promptpack/api-go/internal/generator"
	"github.com/example/promptpack/api-go/internal/model"
	"github.com/example/promptpack/api-go/internal/workspace"
)

// Delivery is a fully built archive ready to be streamed.
type Delivery struct {
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
}

// DeliverFunc streams d to the client. The archive is removed once it
// returns, so the body must be consumed before returning.
type DeliverFunc func(ctx context.Context, d Delivery) error

// Workspaces allocates and removes job workspaces.
type Workspaces interface {
	Acquire(jobID string) (workspace.Workspace, error)
	Release(ws workspace.Workspace) error
}

// Archiver packages generated files.
type Archiver interface {
	Build(ctx context.Context, dir string, files []string) (archive.Result, error)
}

type Pipeline struct {
	Workspaces Workspaces
	Generator  generator.Generator
	Archiver   Archiver
	Log        logrus.FieldLogger

	// NewID returns a fresh job id. Defaults to UUIDv7.
	NewID func() (string, error)
}

func New(ws Workspaces, gen generator.Generator, arc Archiver, log logrus.FieldLogger) *Pipeline {
	return &Pipeline{Workspaces: ws, Generator: gen, Archiver: arc, Log: log}
}

// Run executes one job. deliver is called at most once, and only after the
// archive has been fully written and closed. The workspace is released on
// every path before Run returns. The returned job is never nil.
func (p *Pipeline) Run(ctx context.Context, prompt string, deliver DeliverFunc) (job *model.Job, err error) {
	job = &model.Job{CreatedAt: time.Now().UTC(), Status: model.JobCreated, Prompt: prompt}

	id, err := p.newID()
	if err != nil {
		return p.fail(job, model.NewJobError(model.ErrWorkspaceCreate, "allocate job id", err))
	}
	job.ID = id
	log := p.Log.WithField("job_id", id)

	ws, err := p.Workspaces.Acquire(id)
	if err != nil {
		return p.fail(job, err)
	}
	job.Workspace = ws.Path
	log.Debug("pipeline: workspace acquired")

	// The body may already be on the wire, so a release failure is logged
	// rather than turned into a job error.
	defer func() {
		if rerr := p.Workspaces.Release(ws); rerr != nil {
			log.WithError(rerr).Error("pipeline: workspace release failed")
			return
		}
		if job.Status == model.JobDelivered {
			job.Status = model.JobCleaned
		}
		log.WithField("status", job.Status).Debug("pipeline: workspace released")
	}()

	files, err := p.Generator.Generate(ctx, prompt, ws)
	if err != nil {
		if !errors.Is(err, model.ErrGeneration) {
			err = model.NewJobError(model.ErrGeneration, "generator error", err)
		}
		return p.fail(job, err)
	}
	job.Files = files
	job.Status = model.JobPopulated
	log.WithField("files", len(files)).Debug("pipeline: populated")

	res, err := p.Archiver.Build(ctx, ws.Path, files)
	if err != nil {
		if !errors.Is(err, model.ErrArchive) {
			err = model.NewJobError(model.ErrArchive, "archiver error", err)
		}
		return p.fail(job, err)
	}
	job.ArchivePath = res.Path
	job.ArchiveName = res.Name
	job.Status = model.JobArchived
	log.WithField("bytes", res.Size).Debug("pipeline: archived")

	if err := p.deliver(ctx, res, deliver); err != nil {
		return p.fail(job, err)
	}
	job.Status = model.JobDelivered
	log.WithFields(logrus.Fields{"archive": res.Name, "bytes": res.Size}).Info("pipeline: delivered")
	return job, nil
}

func (p *Pipeline) deliver(ctx context.Context, res archive.Result, deliver DeliverFunc) error {
	f, err := os.Open(res.Path)
	if err != nil {
		return model.NewJobError(model.ErrArchive, "open archive", err)
	}
	defer f.Close()

	if err := ctx.Err(); err != nil {
		return model.NewJobError(model.ErrTransport, "client gone before delivery", err)
	}
	err = deliver(ctx, Delivery{
		Name:        res.Name,
		Size:        res.Size,
		ContentType: archive.ContentType,
		Body:        f,
	})
	if err != nil {
		return model.NewJobError(model.ErrTransport, "stream archive", err)
	}
	return nil
}

func (p *Pipeline) fail(job *model.Job, err error) (*model.Job, error) {
	job.Status = model.JobFailed
	job.Error = model.Reason(err)
	entry := p.Log.WithField("job_id", job.ID).WithError(err)
	if errors.Is(err, model.ErrTransport) || errors.Is(err, model.ErrInvalidPrompt) {
		entry.Warn("pipeline: job failed")
	} else {
		entry.Error("pipeline: job failed")
	}
	return job, err
}

func (p *Pipeline) newID() (string, error) {
	if p.NewID != nil {
		return p.NewID()
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
