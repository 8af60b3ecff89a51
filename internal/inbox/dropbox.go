package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/oauth2"

	"github.com/jmylchreest/vidbrief/internal/config"
	"github.com/jmylchreest/vidbrief/internal/httpclient"
)

// Dropbox API hosts.
const (
	DefaultDropboxAPIURL     = "https://api.dropboxapi.com"
	DefaultDropboxContentURL = "https://content.dropboxapi.com"
)

// DropboxSource reads an inbox folder through the Dropbox HTTP API using a
// long-lived refresh token.
type DropboxSource struct {
	folder     string
	apiURL     string
	contentURL string
	client     *httpclient.Client
	tokens     oauth2.TokenSource
}

// NewDropboxSource creates a source for folder ("" is the app root).
func NewDropboxSource(ctx context.Context, folder string, cfg config.DropboxConfig, client *httpclient.Client) (*DropboxSource, error) {
	if cfg.AppKey == "" || cfg.AppSecret == "" || cfg.RefreshToken == "" {
		return nil, fmt.Errorf("inbox.dropbox app_key, app_secret and refresh_token are required")
	}
	if client == nil {
		client = httpclient.NewWithDefaults()
	}

	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultDropboxAPIURL
	}
	contentURL := strings.TrimRight(cfg.ContentURL, "/")
	if contentURL == "" {
		contentURL = DefaultDropboxContentURL
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.AppKey,
		ClientSecret: cfg.AppSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  apiURL + "/oauth2/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	return &DropboxSource{
		folder:     normalizeDropboxFolder(folder),
		apiURL:     apiURL,
		contentURL: contentURL,
		client:     client,
		tokens:     oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken}),
	}, nil
}

// Dropbox addresses the root as "" and every other folder with a leading slash.
func normalizeDropboxFolder(folder string) string {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return ""
	}
	return "/" + folder
}

type dropboxEntry struct {
	Tag            string    `json:".tag"`
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	PathLower      string    `json:"path_lower"`
	PathDisplay    string    `json:"path_display"`
	Size           int64     `json:"size"`
	ServerModified time.Time `json:"server_modified"`
}

type dropboxListResult struct {
	Entries []dropboxEntry `json:"entries"`
	Cursor  string         `json:"cursor"`
	HasMore bool           `json:"has_more"`
}

// List walks the folder recursively and returns its files.
func (d *DropboxSource) List(ctx context.Context) ([]Item, error) {
	var page dropboxListResult
	err := d.rpc(ctx, "/2/files/list_folder", map[string]any{"path": d.folder, "recursive": true}, &page)
	if err != nil {
		return nil, fmt.Errorf("listing dropbox folder %q: %w", d.folder, err)
	}

	var items []Item
	for {
		for _, e := range page.Entries {
			if e.Tag != "file" {
				continue
			}
			items = append(items, Item{ID: e.PathLower, Name: e.PathDisplay, Size: e.Size, ModTime: e.ServerModified})
		}
		if !page.HasMore {
			return items, nil
		}

		cursor := page.Cursor
		page = dropboxListResult{}
		if err := d.rpc(ctx, "/2/files/list_folder/continue", map[string]string{"cursor": cursor}, &page); err != nil {
			return nil, fmt.Errorf("continuing dropbox listing: %w", err)
		}
	}
}

// Fetch downloads the file content to destPath.
func (d *DropboxSource) Fetch(ctx context.Context, item Item, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.contentURL+"/2/files/download", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	arg, err := dropboxAPIArg(map[string]string{"path": item.ID})
	if err != nil {
		return err
	}
	req.Header.Set("Dropbox-API-Arg", arg)
	if err := d.authorize(req); err != nil {
		return err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", item.Name, err)
	}
	defer resp.Body.Close()
	if err := httpclient.CheckStatus(resp); err != nil {
		return fmt.Errorf("downloading %s: %w", item.Name, err)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", destPath, err)
	}
	_, err = io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("downloading %s: %w", item.Name, err)
	}
	return nil
}

// Delete removes the file. A file that is already gone counts as deleted.
func (d *DropboxSource) Delete(ctx context.Context, item Item) error {
	err := d.rpc(ctx, "/2/files/delete_v2", map[string]string{"path": item.ID}, nil)
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict &&
		strings.Contains(statusErr.Body, "not_found") {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting %s: %w", item.Name, err)
	}
	return nil
}

// Describe returns the dropbox folder.
func (d *DropboxSource) Describe() string {
	return "dropbox:" + d.folder
}

func (d *DropboxSource) rpc(ctx context.Context, endpoint string, body, out any) error {
	tok, err := d.tokens.Token()
	if err != nil {
		return fmt.Errorf("refreshing dropbox token: %w", err)
	}
	header := http.Header{"Authorization": {tok.Type() + " " + tok.AccessToken}}
	return d.client.PostJSON(ctx, d.apiURL+endpoint, header, body, out)
}

func (d *DropboxSource) authorize(req *http.Request) error {
	tok, err := d.tokens.Token()
	if err != nil {
		return fmt.Errorf("refreshing dropbox token: %w", err)
	}
	tok.SetAuthHeader(req)
	return nil
}

// dropboxAPIArg encodes v for the Dropbox-API-Arg header, which must be ASCII.
func dropboxAPIArg(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding api arg: %w", err)
	}

	var b strings.Builder
	for _, r := range string(raw) {
		switch {
		case r < utf8.RuneSelf:
			b.WriteRune(r)
		case r > 0xFFFF:
			r1, r2 := utf16.EncodeRune(r)
			fmt.Fprintf(&b, `\u%04x\u%04x`, r1, r2)
		default:
			fmt.Fprintf(&b, `\u%04x`, r)
		}
	}
	return b.String(), nil
}
