// Package publish uploads run artifacts to OCI Object Storage.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/objectstorage"
)

// DefaultRetries is the number of upload attempts.
const DefaultRetries = 3

// ObjectStore is the part of the Object Storage client the publisher uses.
type ObjectStore interface {
	GetNamespace(ctx context.Context, request objectstorage.GetNamespaceRequest) (objectstorage.GetNamespaceResponse, error)
	PutObject(ctx context.Context, request objectstorage.PutObjectRequest) (objectstorage.PutObjectResponse, error)
}

// Options selects where artifacts go.
type Options struct {
	Bucket    string
	Namespace string // fetched from the service when empty
	Host      string // overrides the SDK endpoint when set
	Prefix    string
	Retries   int
}

// Publisher uploads JSON artifacts.
type Publisher struct {
	store   ObjectStore
	opts    Options
	logger  *slog.Logger
	backoff time.Duration
}

type nopCloser struct {
	io.Reader
}

func (nopCloser) Close() error { return nil }

// NewClient builds an Object Storage client over an HTTP/2 transport.
func NewClient(provider common.ConfigurationProvider, host string) (*objectstorage.ObjectStorageClient, error) {
	client, err := objectstorage.NewObjectStorageClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}
	httpClient, err := newHTTPClient()
	if err != nil {
		return nil, err
	}
	client.HTTPClient = httpClient

	// Use the host override if provided, otherwise use the SDK default
	if host != "" {
		client.Host = host
	}
	return &client, nil
}

// New returns a Publisher writing through store.
func New(store ObjectStore, opts Options, logger *slog.Logger) *Publisher {
	if opts.Retries < 1 {
		opts.Retries = DefaultRetries
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Publisher{store: store, opts: opts, logger: logger, backoff: time.Second}
}

// ObjectName is the name an artifact for runID is stored under.
func (p *Publisher) ObjectName(runID string) string {
	return fmt.Sprintf("%s%s.json", p.opts.Prefix, runID)
}

// Publish uploads body as the artifact of runID and returns the object name.
func (p *Publisher) Publish(ctx context.Context, runID string, body []byte) (string, error) {
	if p.opts.Bucket == "" {
		return "", errors.New("publish: bucket is required")
	}
	namespace, err := p.namespace(ctx)
	if err != nil {
		return "", err
	}
	name := p.ObjectName(runID)
	request := objectstorage.PutObjectRequest{
		NamespaceName: common.String(namespace),
		BucketName:    common.String(p.opts.Bucket),
		ObjectName:    common.String(name),
		ContentLength: common.Int64(int64(len(body))),
		ContentType:   common.String("application/json"),
	}
	if err := p.uploadWithRetry(ctx, request, body); err != nil {
		return "", err
	}
	p.logger.Info("published artifact", "namespace", namespace, "bucket", p.opts.Bucket, "object", name)
	return name, nil
}

func (p *Publisher) namespace(ctx context.Context) (string, error) {
	if p.opts.Namespace != "" {
		return p.opts.Namespace, nil
	}
	resp, err := p.store.GetNamespace(ctx, objectstorage.GetNamespaceRequest{})
	if err != nil {
		return "", fmt.Errorf("failed to fetch namespace: %w", err)
	}
	if resp.Value == nil {
		return "", errors.New("failed to fetch namespace: empty response")
	}
	p.logger.Debug("fetched namespace", "namespace", *resp.Value)
	return *resp.Value, nil
}

// uploadWithRetry retries 429 and 503 responses with a linear backoff.
func (p *Publisher) uploadWithRetry(ctx context.Context, request objectstorage.PutObjectRequest, body []byte) error {
	var err error
	for i := 0; i < p.opts.Retries; i++ {
		// A fresh reader per attempt; the SDK consumes the body.
		request.PutObjectBody = nopCloser{bytes.NewReader(body)}
		_, err = p.store.PutObject(ctx, request)
		if err == nil {
			return nil
		}
		if code := statusCode(err); code != http.StatusTooManyRequests && code != http.StatusServiceUnavailable {
			break
		}
		if i == p.opts.Retries-1 {
			break
		}
		p.logger.Warn("retrying upload", "attempt", i+1, "retries", p.opts.Retries, "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to upload %s: %w", *request.ObjectName, ctx.Err())
		case <-time.After(time.Duration(i+1) * p.backoff):
		}
	}
	return fmt.Errorf("failed to upload %s: %w", *request.ObjectName, err)
}

func statusCode(err error) int {
	var se interface{ GetHTTPStatusCode() int }
	if errors.As(err, &se) {
		return se.GetHTTPStatusCode()
	}
	return 0
}
