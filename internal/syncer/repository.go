package syncer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/alexjbarnes/paper-sync/internal/models"
	"github.com/alexjbarnes/paper-sync/internal/wire"
)

// Repository is the engine's view of the local replica. The concrete
// store is an external collaborator; *state.Store satisfies this
// interface. Get methods return nil (not an error) when the entity is
// absent; ChangedSince queries are strictly-greater-than.
type Repository interface {
	GetPaper(id uuid.UUID) (*models.Paper, error)
	SavePaper(p *models.Paper) error
	DeletePaper(id uuid.UUID) error
	AllPapers() ([]*models.Paper, error)
	PapersChangedSince(t time.Time) ([]*models.Paper, error)

	GetAnnotation(id uuid.UUID) (*models.Annotation, error)
	SaveAnnotation(a *models.Annotation) error
	DeleteAnnotation(id uuid.UUID) error
	AnnotationsChangedSince(t time.Time) ([]*models.Annotation, error)

	GetCollection(id uuid.UUID) (*models.Collection, error)
	SaveCollection(c *models.Collection) error
	DeleteCollection(id uuid.UUID) error
	CollectionsChangedSince(t time.Time) ([]*models.Collection, error)

	GetTag(id uuid.UUID) (*models.Tag, error)
	SaveTag(t *models.Tag) error
	DeleteTag(id uuid.UUID) error
	TagsCreatedSince(t time.Time) ([]*models.Tag, error)

	RecordDeletion(entityType models.EntityType, entityID uuid.UUID) error
	DeletionsSince(t time.Time) ([]models.DeletionRecord, error)
	PruneDeletions(before time.Time) error

	LastSync() (*time.Time, error)
	SetLastSync(t time.Time) error
	ClearLastSync() error
}

// Transport is the engine's view of the remote server. *transport.Client
// satisfies this interface.
type Transport interface {
	Pull(ctx context.Context, since *time.Time) (*wire.PullResponse, error)
	Push(ctx context.Context, req *wire.PushRequest) (*wire.PushResponse, error)
	UploadPDF(ctx context.Context, paperID uuid.UUID, data []byte) error
	DownloadPDF(ctx context.Context, paperID uuid.UUID) ([]byte, error)
}
