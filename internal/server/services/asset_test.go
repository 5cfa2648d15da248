package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vektorburo/backoffice/internal/common"
	sc "github.com/vektorburo/backoffice/internal/server/config"
	"github.com/vektorburo/backoffice/internal/server/models"
)

// --- fakes ---

type fakeAssetsRepo struct {
	byID  map[string]*models.Asset
	byKey map[string]bool

	updateErr error

	created *models.Asset
	updated *models.Asset
	deleted string
}

func newFakeAssetsRepo() *fakeAssetsRepo {
	return &fakeAssetsRepo{byID: map[string]*models.Asset{}, byKey: map[string]bool{}}
}

func (f *fakeAssetsRepo) Create(ctx context.Context, a *models.Asset) (*models.Asset, error) {
	if f.byKey[a.StorageKey] {
		return nil, common.ErrAlreadyExists
	}
	a.ID = "asset-" + a.StorageKey
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	f.byKey[a.StorageKey] = true
	f.byID[a.ID] = a
	f.created = a
	return a, nil
}

func (f *fakeAssetsRepo) GetByID(ctx context.Context, id string) (*models.Asset, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (f *fakeAssetsRepo) ListByCollection(ctx context.Context, c models.Collection) ([]*models.Asset, error) {
	var result []*models.Asset
	for _, a := range f.byID {
		if a.Collection == c {
			result = append(result, a)
		}
	}
	return result, nil
}

func (f *fakeAssetsRepo) Update(ctx context.Context, a *models.Asset) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.byID[a.ID]; !ok {
		return common.ErrNotFound
	}
	f.byID[a.ID] = a
	f.updated = a
	return nil
}

func (f *fakeAssetsRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return common.ErrNotFound
	}
	delete(f.byID, id)
	f.deleted = id
	return nil
}

// stubPresign replaces the AWS seams so no network is touched. deposited
// lists the storage keys HeadObject should report as present.
func stubPresign(t *testing.T, deposited map[string]bool, putErr, getErr error) {
	t.Helper()

	origLoad := loadDefaultAWSConfig
	origPut := presignPutObject
	origGet := presignGetObject
	origHead := headObject
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		presignPutObject = origPut
		presignGetObject = origGet
		headObject = origHead
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, nil
	}
	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		if putErr != nil {
			return nil, putErr
		}
		return &v4.PresignedHTTPRequest{URL: "https://store.local/put/" + *in.Key}, nil
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		if getErr != nil {
			return nil, getErr
		}
		return &v4.PresignedHTTPRequest{URL: "https://store.local/get/" + *in.Key}, nil
	}
	headObject = func(c *s3.Client, ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
		if !deposited[*in.Key] {
			return nil, errors.New("NotFound")
		}
		return &s3.HeadObjectOutput{}, nil
	}
}

func newAssetService(db *sql.DB, repo *fakeAssetsRepo) *AssetService {
	cfg := &sc.Config{}
	cfg.LoadDefaults()
	return NewAssetService(db, &fakeRepoManager{a: repo}, cfg)
}

// newTxDB backs the transactional service paths with sqlmock so begin/commit
// expectations can be asserted.
func newTxDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// --- tests ---

func TestRandomStorageKey_Shape(t *testing.T) {
	key := RandomStorageKey()
	if !strings.HasPrefix(key, "uploads/") {
		t.Fatalf("unexpected key: %q", key)
	}
	if key == RandomStorageKey() {
		t.Fatal("two keys collided")
	}
}

func TestMintTicket_Success(t *testing.T) {
	stubPresign(t, nil, nil, nil)
	svc := newAssetService(nil, newFakeAssetsRepo())

	ticket, err := svc.MintTicket(context.Background())
	if err != nil {
		t.Fatalf("MintTicket error: %v", err)
	}
	if ticket.StorageKey == "" || !strings.Contains(ticket.UploadURL, ticket.StorageKey) {
		t.Fatalf("unexpected ticket: %+v", ticket)
	}
}

func TestMintTicket_BrokerUnavailable(t *testing.T) {
	stubPresign(t, nil, errors.New("presign failed"), nil)
	svc := newAssetService(nil, newFakeAssetsRepo())

	_, err := svc.MintTicket(context.Background())
	if !errors.Is(err, common.ErrBrokerUnavailable) {
		t.Fatalf("expected ErrBrokerUnavailable, got %v", err)
	}
}

func TestRegister_Success(t *testing.T) {
	stubPresign(t, map[string]bool{"uploads/k1": true}, nil, nil)
	repo := newFakeAssetsRepo()
	svc := newAssetService(nil, repo)

	asset, err := svc.Register(context.Background(), RegisterInput{
		Collection: models.CollectionCAD,
		Name:       "bridge.dwg",
		StorageKey: "uploads/k1",
		UploadedBy: "a@x.com",
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if asset.URL == "" {
		t.Fatal("retrieval URL is empty on a complete record")
	}
	if asset.UploadedBy != "a@x.com" {
		t.Fatalf("uploader lost: %q", asset.UploadedBy)
	}
	if repo.created == nil {
		t.Fatal("record not persisted")
	}
}

func TestRegister_MissingUploaderGetsSentinel(t *testing.T) {
	stubPresign(t, map[string]bool{"uploads/k1": true}, nil, nil)
	svc := newAssetService(nil, newFakeAssetsRepo())

	asset, err := svc.Register(context.Background(), RegisterInput{
		Collection: models.CollectionDocument,
		Name:       "handbook.pdf",
		StorageKey: "uploads/k1",
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if asset.UploadedBy != models.UnknownUploader {
		t.Fatalf("expected sentinel uploader, got %q", asset.UploadedBy)
	}
}

func TestRegister_UndepositedHandle(t *testing.T) {
	stubPresign(t, nil, nil, nil) // nothing deposited
	repo := newFakeAssetsRepo()
	svc := newAssetService(nil, repo)

	_, err := svc.Register(context.Background(), RegisterInput{
		Collection: models.CollectionInvoice,
		Name:       "inv-42.pdf",
		StorageKey: "uploads/never-used",
		UploadedBy: "a@x.com",
	})
	if !errors.Is(err, common.ErrUnresolvableHandle) {
		t.Fatalf("expected ErrUnresolvableHandle, got %v", err)
	}
	if repo.created != nil {
		t.Fatal("record created despite unresolvable handle")
	}
}

func TestRegister_ConsumedHandle(t *testing.T) {
	stubPresign(t, map[string]bool{"uploads/k1": true}, nil, nil)
	svc := newAssetService(nil, newFakeAssetsRepo())
	ctx := context.Background()

	in := RegisterInput{
		Collection: models.CollectionCAD,
		Name:       "part.dwg",
		StorageKey: "uploads/k1",
		UploadedBy: "a@x.com",
	}

	if _, err := svc.Register(ctx, in); err != nil {
		t.Fatalf("first Register error: %v", err)
	}
	_, err := svc.Register(ctx, in)
	if !errors.Is(err, common.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists on reused handle, got %v", err)
	}
}

func TestRegister_UnknownCollection(t *testing.T) {
	stubPresign(t, map[string]bool{"uploads/k1": true}, nil, nil)
	svc := newAssetService(nil, newFakeAssetsRepo())

	_, err := svc.Register(context.Background(), RegisterInput{
		Collection: "mixtapes",
		Name:       "x",
		StorageKey: "uploads/k1",
	})
	if err == nil {
		t.Fatal("expected error for unknown collection")
	}
}

func TestRegister_PortfolioLogoResolved(t *testing.T) {
	stubPresign(t, map[string]bool{"uploads/img": true, "uploads/logo": true}, nil, nil)
	svc := newAssetService(nil, newFakeAssetsRepo())

	asset, err := svc.Register(context.Background(), RegisterInput{
		Collection:     models.CollectionPortfolio,
		Name:           "North bridge",
		Description:    "2019, steel truss",
		StorageKey:     "uploads/img",
		LogoStorageKey: "uploads/logo",
		UploadedBy:     "a@x.com",
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if asset.LogoURL == "" {
		t.Fatal("logo URL not resolved")
	}
}

func TestUpdatePortfolio(t *testing.T) {
	stubPresign(t, map[string]bool{"uploads/img": true, "uploads/img2": true}, nil, nil)
	repo := newFakeAssetsRepo()
	db, mock := newTxDB(t)
	svc := newAssetService(db, repo)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectCommit()

	created, err := svc.Register(ctx, RegisterInput{
		Collection: models.CollectionPortfolio,
		Name:       "Old name",
		StorageKey: "uploads/img",
		UploadedBy: "a@x.com",
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	updated, err := svc.UpdatePortfolio(ctx, created.ID, PortfolioPatch{
		Name:       "New name",
		StorageKey: "uploads/img2",
	})
	if err != nil {
		t.Fatalf("UpdatePortfolio error: %v", err)
	}
	if updated.Name != "New name" {
		t.Fatalf("name not updated: %q", updated.Name)
	}
	if updated.StorageKey != "uploads/img2" || !strings.Contains(updated.URL, "uploads/img2") {
		t.Fatalf("handle not re-resolved: %+v", updated)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("update did not run in a transaction: %v", err)
	}
}

func TestUpdatePortfolio_ConsumedReplacementHandle(t *testing.T) {
	stubPresign(t, map[string]bool{"uploads/img": true, "uploads/taken": true}, nil, nil)
	repo := newFakeAssetsRepo()
	db, mock := newTxDB(t)
	svc := newAssetService(db, repo)
	ctx := context.Background()

	created, err := svc.Register(ctx, RegisterInput{
		Collection: models.CollectionPortfolio,
		Name:       "Project",
		StorageKey: "uploads/img",
		UploadedBy: "a@x.com",
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectRollback()
	repo.updateErr = common.ErrAlreadyExists

	_, err = svc.UpdatePortfolio(ctx, created.ID, PortfolioPatch{StorageKey: "uploads/taken"})
	if !errors.Is(err, common.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for a handle owned by another record, got %v", err)
	}
	if errors.Is(err, common.ErrPersistenceFailure) {
		t.Fatalf("conflict must not surface as a persistence failure: %v", err)
	}
}

func TestUpdatePortfolio_WrongCollection(t *testing.T) {
	stubPresign(t, map[string]bool{"uploads/k1": true}, nil, nil)
	repo := newFakeAssetsRepo()
	db, mock := newTxDB(t)
	svc := newAssetService(db, repo)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectRollback()

	created, err := svc.Register(ctx, RegisterInput{
		Collection: models.CollectionCAD,
		Name:       "part.dwg",
		StorageKey: "uploads/k1",
		UploadedBy: "a@x.com",
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	_, err = svc.UpdatePortfolio(ctx, created.ID, PortfolioPatch{Name: "nope"})
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for non-portfolio asset, got %v", err)
	}
}

func TestDeletePortfolio(t *testing.T) {
	stubPresign(t, map[string]bool{"uploads/img": true}, nil, nil)
	repo := newFakeAssetsRepo()
	db, mock := newTxDB(t)
	svc := newAssetService(db, repo)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectRollback()

	created, err := svc.Register(ctx, RegisterInput{
		Collection: models.CollectionPortfolio,
		Name:       "Project",
		StorageKey: "uploads/img",
		UploadedBy: "a@x.com",
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	if err := svc.DeletePortfolio(ctx, created.ID); err != nil {
		t.Fatalf("DeletePortfolio error: %v", err)
	}
	if repo.deleted != created.ID {
		t.Fatalf("unexpected delete target: %q", repo.deleted)
	}

	if err := svc.DeletePortfolio(ctx, created.ID); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
