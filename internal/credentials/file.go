package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/PolybrainAI/polybrain-core/internal/session"
)

const (
	fileMode        = 0o600
	dirMode         = 0o700
	tempFilePattern = ".credentials-*.toml.tmp"
	schemaVersion   = 1
)

type fileSchema struct {
	Version int                     `toml:"version"`
	Users   map[string]bundleSchema `toml:"users"`
}

type bundleSchema struct {
	ModelAPIKey  string `toml:"model_api_key"`
	CADAccessKey string `toml:"cad_access_key"`
	CADSecretKey string `toml:"cad_secret_key"`
}

// FileStore keeps bundles in a TOML file keyed by user token:
//
//	version = 1
//	[users.<token>]
//	model_api_key = "..."
//	cad_access_key = "..."
//	cad_secret_key = "..."
type FileStore struct {
	path string
	mu   sync.RWMutex
}

// NewFileStore opens the store at path. The file need not exist yet.
func NewFileStore(path string) (*FileStore, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve credentials path: %w", err)
	}
	return &FileStore{path: filepath.Clean(abs)}, nil
}

// Path returns the absolute file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Resolve(ctx context.Context, userToken string) (session.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return session.Credentials{}, err
	}
	token := strings.TrimSpace(userToken)
	if token == "" {
		return session.Credentials{}, ErrUnknownToken
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := s.read()
	if err != nil {
		return session.Credentials{}, err
	}
	entry, ok := file.Users[token]
	if !ok {
		return session.Credentials{}, ErrUnknownToken
	}
	creds := session.Credentials{
		ModelAPIKey:  entry.ModelAPIKey,
		CADAccessKey: entry.CADAccessKey,
		CADSecretKey: entry.CADSecretKey,
	}
	return creds, validate(creds)
}

// Put stores or replaces the bundle for a token.
func (s *FileStore) Put(ctx context.Context, userToken string, creds session.Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	token := strings.TrimSpace(userToken)
	if token == "" {
		return errors.New("credentials: user token is empty")
	}
	if err := validate(creds); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return err
	}
	file.Users[token] = bundleSchema{
		ModelAPIKey:  creds.ModelAPIKey,
		CADAccessKey: creds.CADAccessKey,
		CADSecretKey: creds.CADSecretKey,
	}
	return s.write(file)
}

// Delete removes a token. Deleting an unknown token is not an error.
func (s *FileStore) Delete(ctx context.Context, userToken string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := file.Users[userToken]; !ok {
		return nil
	}
	delete(file.Users, userToken)
	return s.write(file)
}

// Tokens lists stored tokens in sorted order.
func (s *FileStore) Tokens(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(file.Users))
	for token := range file.Users {
		out = append(out, token)
	}
	sort.Strings(out)
	return out, nil
}

func (s *FileStore) read() (fileSchema, error) {
	file := fileSchema{Version: schemaVersion, Users: map[string]bundleSchema{}}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return file, nil
		}
		return fileSchema{}, fmt.Errorf("read credentials file: %w", err)
	}
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode credentials file: %w", err)
	}
	if file.Version != schemaVersion {
		return fileSchema{}, fmt.Errorf("credentials file version %d is not supported", file.Version)
	}
	if file.Users == nil {
		file.Users = map[string]bundleSchema{}
	}
	return file, nil
}

func (s *FileStore) write(file fileSchema) error {
	file.Version = schemaVersion
	if err := os.MkdirAll(filepath.Dir(s.path), dirMode); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode credentials file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp credentials file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp credentials file: %w", err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp credentials file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp credentials file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace credentials file: %w", err)
	}
	cleanup = false
	return nil
}
