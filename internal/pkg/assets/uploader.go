package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"accounthub/internal/config"
)

// Asset 是资源站返回的上传结果。
type Asset struct {
	PublicID string `json:"public_id"`
	URL      string `json:"secure_url"`
}

// Uploader 把原始头像数据交给远端资源站，换取稳定引用。
type Uploader interface {
	// Upload 上传一份头像数据（data URL 或 base64 字符串）。
	Upload(ctx context.Context, payload string) (*Asset, error)
}

// HTTPUploader 通过 multipart POST 调用资源站的上传接口。
type HTTPUploader struct {
	cfg    *config.AssetsConfig
	client *http.Client
}

// NewHTTPUploader 创建资源站上传客户端。
func NewHTTPUploader(cfg *config.AssetsConfig) *HTTPUploader {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPUploader{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Upload 上传头像。
//
// 上传发生在任何持久化写入之前，失败只会让本次注册中止，
// 不会留下半建的账户。
func (u *HTTPUploader) Upload(ctx context.Context, payload string) (*Asset, error) {
	if u.cfg.UploadURL == "" {
		return nil, fmt.Errorf("assets config missing")
	}
	if payload == "" {
		return nil, fmt.Errorf("empty avatar payload")
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("file", payload); err != nil {
		return nil, fmt.Errorf("write payload: %w", err)
	}
	if err := w.WriteField("folder", u.cfg.Folder); err != nil {
		return nil, fmt.Errorf("write folder: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.UploadURL, &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if u.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.cfg.APIKey)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload avatar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("asset host returned %d: %s", resp.StatusCode, snippet)
	}

	var asset Asset
	if err := json.NewDecoder(resp.Body).Decode(&asset); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if asset.PublicID == "" || asset.URL == "" {
		return nil, fmt.Errorf("asset host returned incomplete reference")
	}
	return &asset, nil
}
