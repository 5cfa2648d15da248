package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vektorburo/backoffice/internal/common"
	"github.com/vektorburo/backoffice/internal/dbx"
	sc "github.com/vektorburo/backoffice/internal/server/config"
	"github.com/vektorburo/backoffice/internal/server/models"
	"github.com/vektorburo/backoffice/internal/server/repositories/repomanager"
)

// seams for testing the AWS client plumbing
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
	headObject = func(c *s3.Client, ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
		return c.HeadObject(ctx, in, optFns...)
	}
)

// AssetService implements the upload broker and the asset registrar: it mints
// single-use write locations into the object store and records durable
// metadata once bytes have been deposited.
type AssetService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
}

func NewAssetService(db *sql.DB, m repomanager.RepositoryManager, config *sc.Config) *AssetService {
	return &AssetService{db: db, repomanager: m, config: config}
}

// Ticket is a broker-issued write location. The key becomes the storage
// handle once the client has deposited bytes at UploadURL.
type Ticket struct {
	StorageKey string
	UploadURL  string
}

// RandomStorageKey produces a fresh date-prefixed object key.
func RandomStorageKey() string {
	d := time.Now()
	return fmt.Sprintf("uploads/%d/%02d/%02d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *AssetService) getS3Client() (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		awsconfig.WithRegion(s.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,     // MINIO_ROOT_USER
			s.config.S3RootPassword, // MINIO_ROOT_PASSWORD
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return client, nil
}

// MintTicket allocates one write slot in the object store and returns a
// presigned PUT location for it. The location expires after the configured
// ticket TTL, and the If-None-Match condition makes the store reject a second
// deposit to the same key. Tickets are not bound to an identity; binding
// happens at registration from the session capsule.
func (s *AssetService) MintTicket(ctx context.Context) (*Ticket, error) {

	client, err := s.getS3Client()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrBrokerUnavailable, err)
	}
	presignClient := newS3PresignClient(client)

	bucket := s.config.S3Bucket
	key := RandomStorageKey()

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		IfNoneMatch: aws.String("*"),
	}, s3.WithPresignExpires(s.config.TicketValidityDuration))

	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrBrokerUnavailable, err)
	}

	return &Ticket{StorageKey: key, UploadURL: req.URL}, nil
}

// resolveHandle checks that bytes were actually deposited at the handle and
// returns a retrieval URL for them. A handle nobody deposited to resolves to
// common.ErrUnresolvableHandle.
func (s *AssetService) resolveHandle(ctx context.Context, key string) (string, error) {

	client, err := s.getS3Client()
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrBrokerUnavailable, err)
	}

	bucket := s.config.S3Bucket

	if _, err := headObject(client, ctx, &s3.HeadObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}); err != nil {
		return "", fmt.Errorf("%w: %s", common.ErrUnresolvableHandle, key)
	}

	presignClient := newS3PresignClient(client)
	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(s.config.TicketValidityDuration))
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrBrokerUnavailable, err)
	}
	if req.URL == "" {
		return "", fmt.Errorf("%w: %s", common.ErrUnresolvableHandle, key)
	}

	return req.URL, nil
}

// RegisterInput carries everything the registrar needs for one record.
// UploadedBy must come from the caller's verified session claim, not from
// client-supplied form data.
type RegisterInput struct {
	Collection  models.Collection
	Name        string
	Description string
	InvoiceType string

	StorageKey     string
	LogoStorageKey string

	UploadedBy string
}

// Register resolves the deposited handle(s) to retrieval URLs and persists
// the collection-specific record. A handle that was never deposited to fails
// with common.ErrUnresolvableHandle before anything is written; a handle that
// was already registered fails with common.ErrAlreadyExists.
func (s *AssetService) Register(ctx context.Context, in RegisterInput) (*models.Asset, error) {

	if !models.ValidCollection(in.Collection) {
		return nil, fmt.Errorf("%w: unknown collection %q", common.ErrInternal, in.Collection)
	}

	uploadedBy := in.UploadedBy
	if uploadedBy == "" {
		uploadedBy = models.UnknownUploader
	}

	url, err := s.resolveHandle(ctx, in.StorageKey)
	if err != nil {
		return nil, err
	}

	asset := &models.Asset{
		Collection:  in.Collection,
		Name:        in.Name,
		Description: in.Description,
		InvoiceType: in.InvoiceType,
		StorageKey:  in.StorageKey,
		URL:         url,
		UploadedBy:  uploadedBy,
	}

	if in.Collection == models.CollectionPortfolio && in.LogoStorageKey != "" {
		logoURL, err := s.resolveHandle(ctx, in.LogoStorageKey)
		if err != nil {
			return nil, err
		}
		asset.LogoStorageKey = in.LogoStorageKey
		asset.LogoURL = logoURL
	}

	repo := s.repomanager.Assets(s.db)
	created, err := repo.Create(ctx, asset)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, common.ErrAlreadyExists
		}
		return nil, fmt.Errorf("%w: %v", common.ErrPersistenceFailure, err)
	}

	return created, nil
}

// List returns the collection's records, newest first.
func (s *AssetService) List(ctx context.Context, collection models.Collection) ([]*models.Asset, error) {
	if !models.ValidCollection(collection) {
		return nil, fmt.Errorf("%w: unknown collection %q", common.ErrInternal, collection)
	}
	repo := s.repomanager.Assets(s.db)
	return repo.ListByCollection(ctx, collection)
}

// PortfolioPatch lists the mutable portfolio fields. Empty handle fields keep
// the current media.
type PortfolioPatch struct {
	Name           string
	Description    string
	StorageKey     string
	LogoStorageKey string
}

// UpdatePortfolio mutates a portfolio record in place. Replaced handles are
// re-resolved; other collections are immutable and report not found. The
// read-modify-write runs in one transaction so concurrent patches cannot
// interleave.
func (s *AssetService) UpdatePortfolio(ctx context.Context, id string, patch PortfolioPatch) (*models.Asset, error) {

	var asset *models.Asset
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Assets(tx)

		var err error
		asset, err = repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if asset.Collection != models.CollectionPortfolio {
			return common.ErrNotFound
		}

		if patch.Name != "" {
			asset.Name = patch.Name
		}
		if patch.Description != "" {
			asset.Description = patch.Description
		}
		if patch.StorageKey != "" && patch.StorageKey != asset.StorageKey {
			url, err := s.resolveHandle(ctx, patch.StorageKey)
			if err != nil {
				return err
			}
			asset.StorageKey = patch.StorageKey
			asset.URL = url
		}
		if patch.LogoStorageKey != "" && patch.LogoStorageKey != asset.LogoStorageKey {
			logoURL, err := s.resolveHandle(ctx, patch.LogoStorageKey)
			if err != nil {
				return err
			}
			asset.LogoStorageKey = patch.LogoStorageKey
			asset.LogoURL = logoURL
		}

		if err := repo.Update(ctx, asset); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.ErrNotFound
			}
			if errors.Is(err, common.ErrAlreadyExists) {
				// the replacement handle was already registered elsewhere
				return common.ErrAlreadyExists
			}
			return fmt.Errorf("%w: %v", common.ErrPersistenceFailure, err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return asset, nil
}

// DeletePortfolio removes a portfolio record. The deposited binary stays in
// the object store; there is no compensating cleanup.
func (s *AssetService) DeletePortfolio(ctx context.Context, id string) error {

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Assets(tx)

		asset, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if asset.Collection != models.CollectionPortfolio {
			return common.ErrNotFound
		}

		return repo.Delete(ctx, id)
	})
}
