// Package state persists the local library replica and the sync
// engine's bookkeeping (watermark, tombstones) in a bbolt database.
package state

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/alexjbarnes/paper-sync/internal/models"
)

const (
	// stateDirPerm is the permission mode for the data directory.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	metaBucket        = []byte("meta")
	papersBucket      = []byte("papers")
	annotationsBucket = []byte("annotations")
	collectionsBucket = []byte("collections")
	tagsBucket        = []byte("tags")
	deletionsBucket   = []byte("deletions")

	lastSyncKey = []byte("last_sync")
)

// Store wraps a bbolt database holding the local replica of the
// library: one bucket per entity type with JSON-encoded values keyed by
// entity ID, a tombstone bucket, and a meta bucket for the watermark.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database at the given path and ensures
// all buckets exist.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{metaBucket, papersBucket, annotationsBucket, collectionsBucket, tagsBucket, deletionsBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) put(bucket []byte, key string, v any) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

// get unmarshals the value for key into out. Returns false when the key
// is absent; absence is a normal condition, not an error.
func (s *Store) get(bucket []byte, key string, out any) (bool, error) {
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, out)
	})
	return found, err
}

func (s *Store) del(bucket []byte, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
}

// --- papers ---

// GetPaper returns the paper with the given ID, or nil if not found.
func (s *Store) GetPaper(id uuid.UUID) (*models.Paper, error) {
	var p models.Paper
	found, err := s.get(papersBucket, id.String(), &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

// SavePaper inserts or overwrites a paper.
func (s *Store) SavePaper(p *models.Paper) error {
	return s.put(papersBucket, p.ID.String(), p)
}

// DeletePaper removes a paper. Deleting an absent paper is a no-op.
func (s *Store) DeletePaper(id uuid.UUID) error {
	return s.del(papersBucket, id.String())
}

// AllPapers returns every paper in the replica.
func (s *Store) AllPapers() ([]*models.Paper, error) {
	var out []*models.Paper
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(papersBucket).ForEach(func(k, v []byte) error {
			var p models.Paper
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, &p)
			return nil
		})
	})
	return out, err
}

// PapersChangedSince returns papers with ModifiedDate strictly after t.
func (s *Store) PapersChangedSince(t time.Time) ([]*models.Paper, error) {
	var out []*models.Paper
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(papersBucket).ForEach(func(k, v []byte) error {
			var p models.Paper
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			if p.ModifiedDate.After(t) {
				out = append(out, &p)
			}
			return nil
		})
	})
	return out, err
}

// --- annotations ---

// GetAnnotation returns the annotation with the given ID, or nil if not found.
func (s *Store) GetAnnotation(id uuid.UUID) (*models.Annotation, error) {
	var a models.Annotation
	found, err := s.get(annotationsBucket, id.String(), &a)
	if err != nil || !found {
		return nil, err
	}
	return &a, nil
}

// SaveAnnotation inserts or overwrites an annotation.
func (s *Store) SaveAnnotation(a *models.Annotation) error {
	return s.put(annotationsBucket, a.ID.String(), a)
}

// DeleteAnnotation removes an annotation.
func (s *Store) DeleteAnnotation(id uuid.UUID) error {
	return s.del(annotationsBucket, id.String())
}

// AnnotationsChangedSince returns annotations with ModifiedDate strictly after t.
func (s *Store) AnnotationsChangedSince(t time.Time) ([]*models.Annotation, error) {
	var out []*models.Annotation
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(annotationsBucket).ForEach(func(k, v []byte) error {
			var a models.Annotation
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if a.ModifiedDate.After(t) {
				out = append(out, &a)
			}
			return nil
		})
	})
	return out, err
}

// --- collections ---

// GetCollection returns the collection with the given ID, or nil if not found.
func (s *Store) GetCollection(id uuid.UUID) (*models.Collection, error) {
	var c models.Collection
	found, err := s.get(collectionsBucket, id.String(), &c)
	if err != nil || !found {
		return nil, err
	}
	return &c, nil
}

// SaveCollection inserts or overwrites a collection.
func (s *Store) SaveCollection(c *models.Collection) error {
	return s.put(collectionsBucket, c.ID.String(), c)
}

// DeleteCollection removes a collection.
func (s *Store) DeleteCollection(id uuid.UUID) error {
	return s.del(collectionsBucket, id.String())
}

// CollectionsChangedSince returns collections with ModifiedDate strictly after t.
func (s *Store) CollectionsChangedSince(t time.Time) ([]*models.Collection, error) {
	var out []*models.Collection
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(collectionsBucket).ForEach(func(k, v []byte) error {
			var c models.Collection
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			if c.ModifiedDate.After(t) {
				out = append(out, &c)
			}
			return nil
		})
	})
	return out, err
}

// --- tags ---

// GetTag returns the tag with the given ID, or nil if not found.
func (s *Store) GetTag(id uuid.UUID) (*models.Tag, error) {
	var t models.Tag
	found, err := s.get(tagsBucket, id.String(), &t)
	if err != nil || !found {
		return nil, err
	}
	return &t, nil
}

// SaveTag inserts or overwrites a tag.
func (s *Store) SaveTag(t *models.Tag) error {
	return s.put(tagsBucket, t.ID.String(), t)
}

// DeleteTag removes a tag.
func (s *Store) DeleteTag(id uuid.UUID) error {
	return s.del(tagsBucket, id.String())
}

// TagsCreatedSince returns tags with CreatedDate strictly after t. Tags
// have no modification timestamp, so this is the only change signal
// they produce.
func (s *Store) TagsCreatedSince(t time.Time) ([]*models.Tag, error) {
	var out []*models.Tag
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(tagsBucket).ForEach(func(k, v []byte) error {
			var tag models.Tag
			if err := json.Unmarshal(v, &tag); err != nil {
				return err
			}
			if tag.CreatedDate.After(t) {
				out = append(out, &tag)
			}
			return nil
		})
	})
	return out, err
}

// --- tombstones ---

// AddDeletion inserts a tombstone record.
func (s *Store) AddDeletion(rec models.DeletionRecord) error {
	return s.put(deletionsBucket, rec.ID.String(), rec)
}

// DeletionsSince returns tombstones with DeletedDate strictly after t.
func (s *Store) DeletionsSince(t time.Time) ([]models.DeletionRecord, error) {
	var out []models.DeletionRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(deletionsBucket).ForEach(func(k, v []byte) error {
			var rec models.DeletionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.DeletedDate.After(t) {
				out = append(out, rec)
			}
			return nil
		})
	})
	return out, err
}

// PruneDeletions removes tombstones with DeletedDate strictly before
// the cutoff. Records at or after the cutoff are retained until the
// server has had a chance to observe them.
func (s *Store) PruneDeletions(before time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(deletionsBucket)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec models.DeletionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.DeletedDate.Before(before) {
				if err := c.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// RecordDeletion removes an entity from its bucket and writes its
// tombstone in a single transaction. This is the entry point for the
// entity-owning code paths; the sync engine itself never creates
// tombstones.
func (s *Store) RecordDeletion(entityType models.EntityType, entityID uuid.UUID) error {
	var bucket []byte
	switch entityType {
	case models.EntityPaper:
		bucket = papersBucket
	case models.EntityAnnotation:
		bucket = annotationsBucket
	case models.EntityCollection:
		bucket = collectionsBucket
	case models.EntityTag:
		bucket = tagsBucket
	default:
		return fmt.Errorf("unknown entity type %q", entityType)
	}

	rec := models.NewDeletionRecord(entityType, entityID)
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucket).Delete([]byte(entityID.String())); err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Bucket(deletionsBucket).Put([]byte(rec.ID.String()), data)
	})
}

// --- watermark ---

// LastSync returns the persisted watermark, or nil before the first
// ever successful sync.
func (s *Store) LastSync() (*time.Time, error) {
	var ts *time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(metaBucket).Get(lastSyncKey)
		if v == nil {
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, string(v))
		if err != nil {
			return fmt.Errorf("parsing watermark: %w", err)
		}
		ts = &t
		return nil
	})
	return ts, err
}

// SetLastSync persists the watermark. Written only after a sync cycle
// fully commits.
func (s *Store) SetLastSync(t time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).Put(lastSyncKey, []byte(t.UTC().Format(time.RFC3339Nano)))
	})
}

// ClearLastSync removes the watermark, forcing the next sync to pull
// the full library.
func (s *Store) ClearLastSync() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).Delete(lastSyncKey)
	})
}
