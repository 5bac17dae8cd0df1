// Package ingest turns one uploaded file into one committed batch of
// canonical transactions.
//
// An upload is parsed completely before anything is written. The first
// invalid row or node aborts the upload and nothing is stored; otherwise the
// whole batch is committed in a single storage transaction.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"txn-ingest/pkg/ingest/csvparser"
	"txn-ingest/pkg/ingest/xmlparser"
	"txn-ingest/pkg/logging"
	"txn-ingest/pkg/metrics"
	"txn-ingest/pkg/record"
	"txn-ingest/pkg/store"
)

// Result describes a committed upload.
type Result struct {
	UploadID string `json:"upload_id"`
	Filename string `json:"filename"`
	Format   Format `json:"format"`
	Records  int    `json:"records"`
}

// CommitHook runs after a batch has been committed.
type CommitHook func(ctx context.Context, result Result)

// Config wires an Ingestor.
type Config struct {
	Store   store.Store
	Metrics metrics.Collector
	Logger  *logging.Logger

	// OnCommit hooks run in order after every successful non-empty commit.
	OnCommit []CommitHook
}

// Ingestor runs the upload pipeline. It is safe for concurrent use; each
// call builds its own batch.
type Ingestor struct {
	store   store.Store
	metrics metrics.Collector
	logger  *logging.Logger
	hooks   []CommitHook
}

// New creates an Ingestor.
func New(config Config) (*Ingestor, error) {
	if config.Store == nil {
		return nil, errors.New("ingest: store is required")
	}

	return &Ingestor{
		store:   config.Store,
		metrics: metrics.OrNoOp(config.Metrics),
		logger:  logging.OrNop(config.Logger).Component("ingest"),
		hooks:   config.OnCommit,
	}, nil
}

// Ingest parses body according to filename's extension and commits the
// records as one batch. body is always closed. A nil or empty body yields
// ErrEmptyUpload, checked before the extension.
func (in *Ingestor) Ingest(ctx context.Context, filename string, body io.ReadCloser) (res Result, err error) {
	start := time.Now()
	res = Result{UploadID: uuid.NewString(), Filename: filename}
	log := in.logger.ForUpload(res.UploadID, filename)

	if body != nil {
		defer body.Close()
	}
	defer func() {
		in.metrics.RecordUpload(res.Format.String(), Label(err), res.Records, time.Since(start))
		in.logOutcome(log, res, err, time.Since(start))
	}()

	if body == nil {
		return res, ErrEmptyUpload
	}

	br := bufio.NewReader(body)
	if _, peekErr := br.Peek(1); peekErr != nil {
		if peekErr == io.EOF {
			return res, ErrEmptyUpload
		}
		return res, fmt.Errorf("read upload: %w", peekErr)
	}

	res.Format, err = DetectFormat(filename)
	if err != nil {
		return res, err
	}

	batch, err := parse(res.Format, br)
	if err != nil {
		return res, err
	}

	if len(batch) > 0 {
		if err := in.store.InsertBatch(ctx, batch); err != nil {
			return res, &PersistenceError{Records: len(batch), Err: err}
		}
	}
	res.Records = len(batch)

	if res.Records > 0 {
		// The batch is committed; hooks run even if the caller has gone.
		hookCtx := context.WithoutCancel(ctx)
		for _, hook := range in.hooks {
			hook(hookCtx, res)
		}
	}

	return res, nil
}

// IngestFile opens path and ingests it under its base name.
func (in *Ingestor) IngestFile(ctx context.Context, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{Filename: filepath.Base(path)}, fmt.Errorf("open upload: %w", err)
	}
	return in.Ingest(ctx, filepath.Base(path), f)
}

func parse(format Format, r io.Reader) ([]record.Transaction, error) {
	switch format {
	case FormatCSV:
		return csvparser.Parse(r)
	case FormatXML:
		return xmlparser.Parse(r)
	default:
		return nil, ErrUnsupportedFormat
	}
}

func (in *Ingestor) logOutcome(log *logging.Logger, res Result, err error, elapsed time.Duration) {
	fields := []zap.Field{
		zap.String("format", res.Format.String()),
		zap.Int("records", res.Records),
		zap.Duration("duration", elapsed),
	}

	switch {
	case err == nil:
		log.Info("upload committed", fields...)
	case IsClientError(err):
		log.Info("upload rejected", append(fields, zap.String("kind", Label(err)), zap.Error(err))...)
	default:
		log.Error("upload failed", append(fields, zap.String("kind", Label(err)), zap.Error(err))...)
	}
}
