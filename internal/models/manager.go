package models

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Progress информация о прогрессе загрузки.
type Progress struct {
	ModelID    string
	Downloaded int64
	Total      int64
	Done       bool
}

// Manager управляет каталогом моделей.
type Manager struct {
	modelsDir string
	client    *http.Client
	mu        sync.Mutex
}

// NewManager создаёт менеджер поверх каталога dir. Каталог создаётся при загрузке.
func NewManager(dir string, client *http.Client) *Manager {
	if client == nil {
		client = http.DefaultClient
	}
	return &Manager{modelsDir: dir, client: client}
}

// ModelsDir возвращает путь к каталогу моделей.
func (m *Manager) ModelsDir() string {
	return m.modelsDir
}

// Path возвращает полный путь к модели.
func (m *Manager) Path(info ModelInfo) string {
	return filepath.Join(m.modelsDir, string(info.Engine), info.Filename)
}

// IsDownloaded проверяет, скачана ли модель.
func (m *Manager) IsDownloaded(info ModelInfo) bool {
	stat, err := os.Stat(m.Path(info))
	if err != nil {
		return false
	}
	if info.IsZip {
		return stat.IsDir()
	}
	return stat.Size() > 0
}

// Resolve превращает ссылку на модель в путь. Ссылка - ID из реестра или путь к файлу.
func (m *Manager) Resolve(ref string) (string, error) {
	info, ok := GetModel(ref)
	if !ok {
		return ref, nil
	}
	if !m.IsDownloaded(info) {
		return "", fmt.Errorf("model %s is not downloaded (run: speechreply models pull %s)", info.ID, info.ID)
	}
	return m.Path(info), nil
}

// Download скачивает модель. progress может быть nil.
func (m *Manager) Download(ctx context.Context, info ModelInfo, progress chan<- Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IsDownloaded(info) {
		send(progress, Progress{ModelID: info.ID, Downloaded: info.Size, Total: info.Size, Done: true})
		return nil
	}

	dest := m.Path(info)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create models dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), info.Filename+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	total, err := m.fetch(ctx, info, tmp, progress)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	if info.IsZip {
		if err := unzip(tmpPath, filepath.Dir(dest)); err != nil {
			return fmt.Errorf("unzip %s: %w", info.ID, err)
		}
	} else if err := os.Rename(tmpPath, dest); err != nil {
		return err
	}

	send(progress, Progress{ModelID: info.ID, Downloaded: total, Total: total, Done: true})
	return nil
}

func (m *Manager) fetch(ctx context.Context, info ModelInfo, w io.Writer, progress chan<- Progress) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return 0, err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", info.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download %s: HTTP %s", info.ID, resp.Status)
	}

	total := resp.ContentLength
	if total <= 0 {
		total = info.Size
	}

	var downloaded int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return downloaded, err
		}

		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return downloaded, err
			}
			downloaded += int64(n)
			trySend(progress, Progress{ModelID: info.ID, Downloaded: downloaded, Total: total})
		}
		if rerr == io.EOF {
			return downloaded, nil
		}
		if rerr != nil {
			return downloaded, rerr
		}
	}
}

func send(ch chan<- Progress, p Progress) {
	if ch != nil {
		ch <- p
	}
}

func trySend(ch chan<- Progress, p Progress) {
	if ch == nil {
		return
	}
	select {
	case ch <- p:
	default:
	}
}

func unzip(src, destDir string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	root := filepath.Clean(destDir) + string(os.PathSeparator)
	for _, f := range r.File {
		fpath := filepath.Join(destDir, f.Name)
		if !strings.HasPrefix(fpath, root) {
			return fmt.Errorf("illegal path in archive: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, 0755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(fpath), 0755); err != nil {
			return err
		}
		if err := extract(f, fpath); err != nil {
			return err
		}
	}

	return nil
}

func extract(f *zip.File, fpath string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
