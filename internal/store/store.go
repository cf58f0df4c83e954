// Package store persists face embeddings as one JSON file per registered identity.
//
// Layout under the data root:
//
//	<root>/<identity>/embeddings.json   JSON array of embeddings
//	<root>/<identity>/images/img_NNN.jpg face crops captured during registration
//	<root>/<identity>/images.staging/    crops of a registration still in progress
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ayusman/facultyid/internal/vector"
	"github.com/pkg/errors"
)

const (
	embeddingsFile = "embeddings.json"
	imagesDir      = "images"
	stagingDir     = "images.staging"
)

var (
	// ErrNotFound is returned when an identity has no stored embeddings.
	ErrNotFound = errors.New("identity not found")
	// ErrInvalidIdentity is returned for keys that cannot name a directory.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrDimensionMismatch is returned when an embedding set mixes vector
	// lengths or differs in length from the identity's stored set.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Record is the full embedding set of one identity.
type Record struct {
	Identity   string
	Embeddings []vector.Embedding
}

// Summary describes a stored identity without its vectors.
type Summary struct {
	Identity  string    `json:"id"`
	Count     int       `json:"embeddings"`
	Dimension int       `json:"dimension"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a directory-backed embedding store. It does no locking; concurrent
// saves of the same identity resolve as last writer wins.
type Store struct {
	root string
	log  *slog.Logger
}

// New creates the data root if needed and returns a Store over it.
func New(root string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create data root %s", root)
	}
	return &Store{root: root, log: logger}, nil
}

// Root returns the data root directory.
func (s *Store) Root() string {
	return s.root
}

// ValidateIdentity rejects keys that are empty or would escape the data root.
func ValidateIdentity(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return errors.Wrap(ErrInvalidIdentity, "empty identity")
	case id == "." || id == "..":
		return errors.Wrapf(ErrInvalidIdentity, "%q", id)
	case strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0):
		return errors.Wrapf(ErrInvalidIdentity, "%q contains a path separator", id)
	}
	return nil
}

// Dimension returns the shared length of every embedding in set, or an
// error if the lengths differ or a vector is empty. An empty set has dimension 0.
func Dimension(set []vector.Embedding) (int, error) {
	if len(set) == 0 {
		return 0, nil
	}
	dim := len(set[0])
	if dim == 0 {
		return 0, errors.Wrap(ErrDimensionMismatch, "embedding 0 is empty")
	}
	for i, e := range set[1:] {
		if len(e) != dim {
			return 0, errors.Wrapf(ErrDimensionMismatch, "embedding %d has %d values, want %d", i+1, len(e), dim)
		}
	}
	return dim, nil
}

func (s *Store) identityDir(id string) string {
	return filepath.Join(s.root, id)
}

// Save replaces the stored embedding set of id with set. A non-empty set
// must match the dimension of the set already stored for id, if any.
func (s *Store) Save(id string, set []vector.Embedding) error {
	if err := ValidateIdentity(id); err != nil {
		return err
	}
	dim, err := Dimension(set)
	if err != nil {
		return errors.Wrapf(err, "save %s", id)
	}
	if err := s.checkStoredDimension(id, dim); err != nil {
		return err
	}
	if set == nil {
		set = []vector.Embedding{}
	}

	dir := s.identityDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create identity dir %s", dir)
	}

	data, err := json.Marshal(set)
	if err != nil {
		return errors.Wrap(err, "encode embeddings")
	}

	tmp, err := os.CreateTemp(dir, embeddingsFile+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write embeddings")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync embeddings")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close embeddings")
	}

	path := filepath.Join(dir, embeddingsFile)
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "replace %s", path)
	}

	s.log.Info("embeddings saved", "identity", id, "count", len(set), "path", path)
	return nil
}

func (s *Store) checkStoredDimension(id string, dim int) error {
	if dim == 0 {
		return nil
	}
	existing, err := s.Load(id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Warn("overwriting unreadable embeddings", "identity", id, "error", err)
		}
		return nil
	}
	stored, _ := Dimension(existing)
	if stored != 0 && stored != dim {
		return errors.Wrapf(ErrDimensionMismatch, "save %s: new embeddings have %d values, stored have %d", id, dim, stored)
	}
	return nil
}

// Load reads the embedding set of id.
func (s *Store) Load(id string) ([]vector.Embedding, error) {
	if err := ValidateIdentity(id); err != nil {
		return nil, err
	}

	path := filepath.Join(s.identityDir(id), embeddingsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrNotFound, id)
		}
		return nil, errors.Wrapf(err, "read %s", path)
	}

	var set []vector.Embedding
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	if _, err := Dimension(set); err != nil {
		return nil, errors.Wrapf(err, "load %s", id)
	}
	if set == nil {
		set = []vector.Embedding{}
	}
	return set, nil
}

// LoadAll reads every identity under the root in lexicographic order.
// Directories without an embeddings file are ignored; unreadable or
// inconsistent records are logged and skipped.
func (s *Store) LoadAll() ([]Record, error) {
	ids, err := s.identities()
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		set, err := s.Load(id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			s.log.Warn("skipping unreadable identity", "identity", id, "error", err)
			continue
		}
		records = append(records, Record{Identity: id, Embeddings: set})
	}
	return records, nil
}

// List summarizes every stored identity.
func (s *Store) List() ([]Summary, error) {
	ids, err := s.identities()
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(ids))
	for _, id := range ids {
		set, err := s.Load(id)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.log.Warn("skipping unreadable identity", "identity", id, "error", err)
			}
			continue
		}
		dim, _ := Dimension(set)
		sum := Summary{Identity: id, Count: len(set), Dimension: dim}
		if info, err := os.Stat(filepath.Join(s.identityDir(id), embeddingsFile)); err == nil {
			sum.UpdatedAt = info.ModTime()
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

// Delete removes the identity directory, crops included.
func (s *Store) Delete(id string) error {
	if err := ValidateIdentity(id); err != nil {
		return err
	}
	dir := s.identityDir(id)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return errors.Wrap(ErrNotFound, id)
		}
		return errors.Wrapf(err, "stat %s", dir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "remove %s", dir)
	}
	s.log.Info("identity deleted", "identity", id)
	return nil
}

// StageImages prepares an empty staging directory for the crops of a new
// registration of id and returns its path. The identity's current crops are
// left in place until CommitImages.
func (s *Store) StageImages(id string) (string, error) {
	if err := ValidateIdentity(id); err != nil {
		return "", err
	}
	dir := filepath.Join(s.identityDir(id), stagingDir)
	if err := os.RemoveAll(dir); err != nil {
		return "", errors.Wrapf(err, "clear %s", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create %s", dir)
	}
	return dir, nil
}

// StagedImagePath returns the staging path for the seq-th capture (1-based) of id.
func (s *Store) StagedImagePath(id string, seq int) string {
	return filepath.Join(s.identityDir(id), stagingDir, imageName(seq))
}

// CommitImages replaces the crops of id with the staged ones.
func (s *Store) CommitImages(id string) error {
	if err := ValidateIdentity(id); err != nil {
		return err
	}
	staged := filepath.Join(s.identityDir(id), stagingDir)
	dir := filepath.Join(s.identityDir(id), imagesDir)
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "clear %s", dir)
	}
	if err := os.Rename(staged, dir); err != nil {
		return errors.Wrapf(err, "commit %s", staged)
	}
	return nil
}

// DiscardImages drops any staged crops of id.
func (s *Store) DiscardImages(id string) error {
	if err := ValidateIdentity(id); err != nil {
		return err
	}
	dir := filepath.Join(s.identityDir(id), stagingDir)
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "remove %s", dir)
	}
	return nil
}

// ImagePath returns the crop path for the seq-th capture (1-based) of id.
func (s *Store) ImagePath(id string, seq int) string {
	return filepath.Join(s.identityDir(id), imagesDir, imageName(seq))
}

func imageName(seq int) string {
	return fmt.Sprintf("img_%03d.jpg", seq)
}

func (s *Store) identities() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, errors.Wrapf(err, "read data root %s", s.root)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && ValidateIdentity(e.Name()) == nil {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}
