package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"qrstudio/internal/domain"
)

// GridFSStore keeps objects in a MongoDB GridFS bucket, one file per path.
// Re-uploading a path replaces the previous revision.
type GridFSStore struct {
	client  *mongo.Client
	bucket  *mongo.GridFSBucket
	BaseURL string
	Policy  Policy
}

var _ Store = (*GridFSStore)(nil)

func NewGridFSStore(ctx context.Context, uri, database, bucket, baseURL string, policy Policy) (*GridFSStore, error) {
	if uri == "" {
		return nil, fmt.Errorf("gridfs: mongo uri is required")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	b := client.Database(database).GridFSBucket(options.GridFSBucket().SetName(bucket))
	log.Printf("[Upload] gridfs bucket %s.%s ready", database, bucket)
	return &GridFSStore{client: client, bucket: b, BaseURL: baseURL, Policy: policy}, nil
}

func (s *GridFSStore) Put(ctx context.Context, p string, r io.Reader, contentType string) (string, error) {
	clean, err := s.Policy.CheckWrite(p)
	if err != nil {
		return "", err
	}
	opts := options.GridFSUpload().SetMetadata(bson.D{{Key: "contentType", Value: contentType}})
	id, err := s.bucket.UploadFromStream(ctx, clean, r, opts)
	if err != nil {
		return "", fmt.Errorf("%w: gridfs upload %s: %v", domain.ErrStorage, clean, err)
	}
	s.dropOlderRevisions(ctx, clean, id)
	return s.URL(clean), nil
}

func (s *GridFSStore) Get(ctx context.Context, p string) (io.ReadCloser, string, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return nil, "", err
	}
	ds, err := s.bucket.OpenDownloadStreamByName(ctx, clean)
	if err != nil {
		if errors.Is(err, mongo.ErrFileNotFound) {
			return nil, "", fmt.Errorf("open %s: %w", clean, domain.ErrNotFound)
		}
		return nil, "", fmt.Errorf("%w: gridfs open %s: %v", domain.ErrStorage, clean, err)
	}
	contentType := ""
	if f := ds.GetFile(); f != nil && f.Metadata != nil {
		if v, ok := f.Metadata.Lookup("contentType").StringValueOK(); ok {
			contentType = v
		}
	}
	return ds, contentType, nil
}

func (s *GridFSStore) Delete(ctx context.Context, p string) error {
	clean, err := s.Policy.CheckWrite(p)
	if err != nil {
		return err
	}
	ids, err := s.revisions(ctx, clean)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("delete %s: %w", clean, domain.ErrNotFound)
	}
	for _, id := range ids {
		if err := s.bucket.Delete(ctx, id); err != nil && !errors.Is(err, mongo.ErrFileNotFound) {
			return fmt.Errorf("%w: gridfs delete %s: %v", domain.ErrStorage, clean, err)
		}
	}
	return nil
}

func (s *GridFSStore) URL(p string) string { return publicURL(s.BaseURL, p) }

func (s *GridFSStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *GridFSStore) revisions(ctx context.Context, name string) ([]bson.ObjectID, error) {
	cur, err := s.bucket.Find(ctx, bson.D{{Key: "filename", Value: name}})
	if err != nil {
		return nil, fmt.Errorf("%w: gridfs find %s: %v", domain.ErrStorage, name, err)
	}
	defer cur.Close(ctx)
	var ids []bson.ObjectID
	for cur.Next(ctx) {
		var f struct {
			ID bson.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&f); err == nil {
			ids = append(ids, f.ID)
		}
	}
	return ids, cur.Err()
}

func (s *GridFSStore) dropOlderRevisions(ctx context.Context, name string, keep bson.ObjectID) {
	ids, err := s.revisions(ctx, name)
	if err != nil {
		log.Printf("[Upload] list revisions of %s: %v", name, err)
		return
	}
	for _, id := range ids {
		if id == keep {
			continue
		}
		if err := s.bucket.Delete(ctx, id); err != nil && !errors.Is(err, mongo.ErrFileNotFound) {
			log.Printf("[Upload] drop old revision of %s: %v", name, err)
		}
	}
}
