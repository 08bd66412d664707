// Package ingest turns inbound membership-export emails, delivered to
// an S3 bucket, into pending state rows for the processor to drain.
package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	appconfig "github.com/chapterhq/roster-sync/internal/config"
	"github.com/chapterhq/roster-sync/internal/roster"
	"github.com/chapterhq/roster-sync/internal/state"
)

// S3API is the slice of the S3 client the ingester uses.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// StateWriter seeds pending rows for the processor.
type StateWriter interface {
	Put(ctx context.Context, item state.Item) error
}

// Result reports one ingested export.
type Result struct {
	RunID   string `json:"run_id"`
	Batch   string `json:"batch"`
	Loaded  int    `json:"loaded"`
	Skipped int    `json:"skipped"`
}

// Ingester downloads raw export emails from S3 and loads their CSV
// rows into the state table.
type Ingester struct {
	s3        S3API
	store     StateWriter
	bucket    string
	keyHeader string
	key       string
	now       func() time.Time
}

// NewIngester builds an S3-backed ingester.
func NewIngester(ctx context.Context, store StateWriter, cfg appconfig.IngestConfig) (*Ingester, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewIngesterWithClient(s3.NewFromConfig(awsCfg), store, cfg), nil
}

// NewIngesterWithClient wires an existing S3 client, used by tests.
func NewIngesterWithClient(client S3API, store StateWriter, cfg appconfig.IngestConfig) *Ingester {
	return &Ingester{
		s3:        client,
		store:     store,
		bucket:    cfg.S3Bucket,
		keyHeader: cfg.SharedKeyHeader,
		key:       cfg.SharedKey,
		now:       time.Now,
	}
}

// IngestObject downloads one stored email, extracts its CSV roster,
// and writes one UNPROCESSED row per record into this week's batch.
// Rows without an email address cannot be keyed and are skipped.
func (i *Ingester) IngestObject(ctx context.Context, objectKey string) (Result, error) {
	res := Result{
		RunID: uuid.NewString(),
		Batch: state.WeekBatch(i.now()),
	}

	log.Printf("ingest: run %s, fetching s3://%s/%s", res.RunID, i.bucket, objectKey)

	obj, err := i.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(i.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return res, fmt.Errorf("fetching export email %s: %w", objectKey, err)
	}
	defer obj.Body.Close()

	csvBody, err := ExtractCSV(obj.Body, i.keyHeader, i.key)
	if err != nil {
		return res, err
	}

	records, err := roster.ReadCSV(csvBody)
	if err != nil {
		return res, fmt.Errorf("reading roster csv: %w", err)
	}

	for _, rec := range records {
		email := rec.Email()
		if email == "" {
			res.Skipped++
			continue
		}

		raw, err := rec.MarshalRaw()
		if err != nil {
			return res, fmt.Errorf("serializing record %s: %w", email, err)
		}
		err = i.store.Put(ctx, state.Item{
			Batch:  res.Batch,
			Email:  email,
			Raw:    raw,
			Status: state.Unprocessed,
		})
		if err != nil {
			return res, fmt.Errorf("storing record %s: %w", email, err)
		}
		res.Loaded++
	}

	log.Printf("ingest: run %s, batch %s loaded=%d skipped=%d",
		res.RunID, res.Batch, res.Loaded, res.Skipped)
	return res, nil
}
