package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"consolidador/internal/domain"
)

const masterStateFile = ".maestra_estado.json"

var masterExtensions = map[string]bool{
	".xlsx": true,
	".xls":  true,
	".xlsb": true,
	".xlsm": true,
	".csv":  true,
}

// MasterInfo describes the currently loaded master file.
type MasterInfo struct {
	OriginalName string    `json:"filename"`
	StoredName   string    `json:"archivo"`
	Size         int64     `json:"tamaño"`
	HumanSize    string    `json:"tamaño_formateado"`
	UploadedAt   time.Time `json:"fecha_carga"`
}

// MasterStore keeps at most one active master file inside an uploads store.
// The active selection survives restarts through a small state file.
type MasterStore struct {
	files *FileStore
	now   func() time.Time

	mu sync.Mutex
}

// NewMasterStore wraps the uploads FileStore.
func NewMasterStore(files *FileStore) *MasterStore {
	return &MasterStore{files: files, now: time.Now}
}

// Save stores r as the new master file and makes it active.
func (m *MasterStore) Save(ctx context.Context, originalName string, r io.Reader) (MasterInfo, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !masterExtensions[ext] {
		return MasterInfo{}, fmt.Errorf("%w: unsupported format %q", domain.ErrInvalidUpload, ext)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	uploadedAt := m.now()
	stored := "maestra_" + uploadedAt.Format("20060102_150405") + ext
	key, err := m.files.Write(ctx, stored, r)
	if err != nil {
		return MasterInfo{}, err
	}
	st, err := m.files.Stat(key)
	if err != nil {
		return MasterInfo{}, err
	}
	if st.Size == 0 {
		_ = m.files.Delete(key)
		return MasterInfo{}, fmt.Errorf("%w: empty file", domain.ErrInvalidUpload)
	}

	previous, _ := m.load()
	info := MasterInfo{
		OriginalName: filepath.Base(originalName),
		StoredName:   key,
		Size:         st.Size,
		HumanSize:    st.HumanSize,
		UploadedAt:   uploadedAt,
	}
	if err := m.store(info); err != nil {
		_ = m.files.Delete(key)
		return MasterInfo{}, err
	}
	if previous.StoredName != "" && previous.StoredName != key {
		_ = m.files.Delete(previous.StoredName)
	}
	return info, nil
}

// Info returns the active master or domain.ErrMasterMissing.
func (m *MasterStore) Info() (MasterInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, err := m.load()
	if err != nil {
		return MasterInfo{}, err
	}
	if _, err := m.files.Stat(info.StoredName); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return MasterInfo{}, domain.ErrMasterMissing
		}
		return MasterInfo{}, err
	}
	return info, nil
}

// MasterPath returns the absolute path of the active master file.
func (m *MasterStore) MasterPath() (string, error) {
	info, err := m.Info()
	if err != nil {
		return "", err
	}
	return m.files.Path(info.StoredName)
}

// Remove deletes the active master file and forgets it.
func (m *MasterStore) Remove() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, err := m.load()
	if err != nil {
		return err
	}
	if err := m.files.Delete(info.StoredName); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	statePath := filepath.Join(m.files.BasePath(), masterStateFile)
	if err := os.Remove(statePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: remove master state: %w", err)
	}
	return nil
}

func (m *MasterStore) load() (MasterInfo, error) {
	data, err := os.ReadFile(filepath.Join(m.files.BasePath(), masterStateFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return MasterInfo{}, domain.ErrMasterMissing
		}
		return MasterInfo{}, fmt.Errorf("storage: read master state: %w", err)
	}
	var info MasterInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return MasterInfo{}, fmt.Errorf("storage: decode master state: %w", err)
	}
	if info.StoredName == "" {
		return MasterInfo{}, domain.ErrMasterMissing
	}
	return info, nil
}

func (m *MasterStore) store(info MasterInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("storage: encode master state: %w", err)
	}
	if _, err := m.files.Write(context.Background(), masterStateFile, strings.NewReader(string(data))); err != nil {
		return fmt.Errorf("storage: write master state: %w", err)
	}
	return nil
}
