package documents

import (
	"context"
	"os"
	"path/filepath"
)

// FileBlobStore writes blobs to <root>/<user-dir>/documents/.
type FileBlobStore struct {
	root string
}

func NewFileBlobStore(root string) *FileBlobStore {
	return &FileBlobStore{root: root}
}

func (s *FileBlobStore) dir(userDir string) string {
	return filepath.Join(s.root, userDir, "documents")
}

func (s *FileBlobStore) path(userDir, docID, filename string) (string, error) {
	name, err := BlobName(docID, filename)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir(userDir), name), nil
}

func (s *FileBlobStore) Save(_ context.Context, userDir, docID string, data []byte, filename, _ string) (string, error) {
	path, err := s.path(userDir, docID, filename)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func (s *FileBlobStore) Get(_ context.Context, userDir, docID, filename string) ([]byte, bool, error) {
	path, err := s.path(userDir, docID, filename)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (s *FileBlobStore) Delete(_ context.Context, userDir, docID, filename string) (bool, error) {
	path, err := s.path(userDir, docID, filename)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *FileBlobStore) List(_ context.Context, userDir string) ([]BlobInfo, error) {
	entries, err := os.ReadDir(s.dir(userDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	blobs := make([]BlobInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		blobs = append(blobs, BlobInfo{Name: e.Name(), ModTime: info.ModTime()})
	}
	return blobs, nil
}
