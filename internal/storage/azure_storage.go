package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"go-image-forensics/internal/logger"
)

const pdfContentType = "application/pdf"

// AzureConfig configures the blob report store.
type AzureConfig struct {
	AccountName string
	AccountKey  string
	Container   string
	// ServiceURL overrides https://<account>.blob.core.windows.net, e.g. for Azurite.
	ServiceURL string
	// MaxRetries bounds upload attempts after the first one.
	MaxRetries uint64
}

type azureReportStore struct {
	client    *azblob.Client
	container string
	retries   uint64
	log       *logrus.Entry
}

// NewAzureReportStore creates a report store backed by one blob container.
// Transient upload failures are retried with exponential backoff; the SDK's
// own retry policy is disabled so there is a single retry layer.
func NewAzureReportStore(cfg AzureConfig) (ReportStore, error) {
	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}

	serviceURL := cfg.ServiceURL
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}

	retries := cfg.MaxRetries
	if retries == 0 {
		retries = 3
	}
	return &azureReportStore{
		client:    client,
		container: cfg.Container,
		retries:   retries,
		log:       logger.Component("azure_storage"),
	}, nil
}

// EnsureContainer creates the container if it does not exist yet.
func EnsureContainer(ctx context.Context, store ReportStore) error {
	s, ok := store.(*azureReportStore)
	if !ok {
		return nil
	}
	_, err := s.client.CreateContainer(ctx, s.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("create container %s: %w", s.container, err)
	}
	return nil
}

func (s *azureReportStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}

	contentType := pdfContentType
	opts := &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	}

	attempt := 0
	upload := func() error {
		attempt++
		_, err := s.client.UploadBuffer(ctx, s.container, name, data, opts)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return backoff.Permanent(err)
		}
		s.log.WithError(err).WithFields(logrus.Fields{"blob": name, "attempt": attempt}).Warn("Report upload failed, retrying")
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(upload, backoff.WithContext(backoff.WithMaxRetries(bo, s.retries), ctx)); err != nil {
		return "", fmt.Errorf("upload blob %s: %w", name, err)
	}

	return strings.TrimSuffix(s.client.URL(), "/") + "/" + url.PathEscape(s.container) + "/" + url.PathEscape(name), nil
}

func (s *azureReportStore) Open(ctx context.Context, name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	downloadResponse, err := s.client.DownloadStream(ctx, s.container, name, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("download failed: %w", err)
	}

	retryReader := downloadResponse.Body
	defer retryReader.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, retryReader); err != nil {
		return nil, fmt.Errorf("read blob %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// retryable treats throttling and server side failures as transient.
func retryable(err error) bool {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		// transport level failure
		return true
	}
	return respErr.StatusCode == 408 || respErr.StatusCode == 429 || respErr.StatusCode >= 500
}
