package update

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const downloadTimeout = 5 * time.Minute

// baselineDir resolves where the baseline dump lives: the explicit import
// path, or a temporary directory the remote baseline is downloaded into.
// Empty string means no baseline is available and a full rebuild follows.
func (u *Updater) baselineDir(ctx context.Context, opts Options) (string, error) {
	if opts.ImportPath != "" {
		if _, err := os.Stat(opts.ImportPath); err != nil {
			return "", fmt.Errorf("import path: %w", err)
		}
		return opts.ImportPath, nil
	}
	if opts.BaselineURL != "" {
		return u.download(ctx, opts.BaselineURL)
	}
	return "", nil
}

// download fetches the three dump files from baseURL into a temp dir.
func (u *Updater) download(ctx context.Context, baseURL string) (string, error) {
	dir, err := os.MkdirTemp("", "packgraph-baseline-")
	if err != nil {
		return "", err
	}
	client := &http.Client{Timeout: downloadTimeout}
	base := strings.TrimRight(baseURL, "/")
	for _, name := range []string{"metadata.json", "schema.json", "graph.json"} {
		if err := fetch(ctx, client, base+"/"+name, filepath.Join(dir, name)); err != nil {
			_ = os.RemoveAll(dir)
			return "", err
		}
	}
	u.log.Info("downloaded baseline dump", "url", baseURL, "dir", dir)
	return dir, nil
}

func fetch(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: status %s", url, resp.Status)
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	return nil
}
