package audio

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"
)

// AssetCache keeps local copies of remote audio assets so playback does not
// depend on the network once preloaded.
type AssetCache struct {
	dir    string
	client *http.Client

	mu    sync.RWMutex
	local map[string]string
}

// DefaultFetchTimeout bounds each asset download when no client is given.
const DefaultFetchTimeout = 30 * time.Second

func NewAssetCache(dir string, client *http.Client) *AssetCache {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	return &AssetCache{dir: dir, client: client, local: make(map[string]string)}
}

// Resolve returns the cached file for asset, or asset itself when it has
// not been fetched.
func (c *AssetCache) Resolve(asset string) string {
	if c == nil {
		return asset
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.local[asset]; ok {
		return p
	}
	return asset
}

// Preload fetches every remote asset. Assets that fail stay remote; the
// aggregated error lists them.
func (c *AssetCache) Preload(ctx context.Context, assets ...string) error {
	log := ctrllog.FromContext(ctx).WithName("asset-cache")

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	var result *multierror.Error
	for _, asset := range assets {
		if !isRemote(asset) {
			continue
		}
		p, err := c.fetch(ctx, asset)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		c.mu.Lock()
		c.local[asset] = p
		c.mu.Unlock()
		log.V(1).Info("Preloaded audio asset", "asset", asset, "path", p)
	}
	return result.ErrorOrNil()
}

func (c *AssetCache) fetch(ctx context.Context, asset string) (string, error) {
	target := filepath.Join(c.dir, cacheName(asset))
	if info, err := os.Stat(target); err == nil && info.Size() > 0 {
		return target, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request for %s: %w", asset, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", asset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch %s: status %d", asset, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(c.dir, ".download-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to download %s: %w", asset, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", err
	}
	return target, nil
}

func isRemote(asset string) bool {
	return strings.HasPrefix(asset, "http://") || strings.HasPrefix(asset, "https://")
}

// cacheName keeps the file extension so players can sniff the format.
func cacheName(asset string) string {
	sum := sha256.Sum256([]byte(asset))
	name := hex.EncodeToString(sum[:8])
	if u, err := url.Parse(asset); err == nil {
		if ext := path.Ext(u.Path); ext != "" {
			name += ext
		}
	}
	return name
}
