package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
)

// MaxUploadSize is the per-file size limit; larger files are skipped with
// a warning by the caller rather than attempted and rejected remotely.
const MaxUploadSize = 20 * 1024 * 1024 // 20 MiB

// acceptedExtensions is the fixed set the remote accepts at upload step 1,
// covering the audio/document/image/video families. Anything else must go
// through the extension-disguise workaround.
var acceptedExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".ogg": true, ".oga": true, ".m4a": true,
	".pdf": true, ".txt": true, ".json": true, ".doc": true, ".docx": true,
	".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".tif": true, ".tiff": true, ".bmp": true, ".svg": true, ".heic": true, ".webp": true,
	".mp4": true, ".mov": true, ".wmv": true, ".avi": true, ".mkv": true, ".webm": true,
}

// disguiseExtension is the workaround suffix step-1 declares when the
// real extension is not in the accepted set. The remote rejects unusual
// extensions at descriptor-creation time even though it will happily
// store arbitrary bytes once a upload session exists.
const disguiseExtension = ".pdf"

type createUploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
}

type createUploadResponse struct {
	ID        string `json:"id"`
	UploadURL string `json:"upload_url"`
}

// Upload is the outcome of a completed three-step file upload: the id to
// reference from a page property or file_upload block.
type Upload struct {
	ID          string
	ContentType string
}

// UploadFile runs the three-step protocol: create a file-upload
// descriptor, POST the bytes as multipart/form-data to the returned URL,
// and return the id for later page reference. filename's extension
// decides whether the disguise workaround is applied at step 1; step 2
// always uploads the true filename and bytes, so the page later displays
// the real name.
func (c *Client) UploadFile(ctx context.Context, filename, contentType string, data []byte) (*Upload, error) {
	if len(data) > MaxUploadSize {
		return nil, fmt.Errorf("notion: upload_file %s: %d bytes exceeds %d byte limit", filename, len(data), MaxUploadSize)
	}

	descriptorName := filename
	ext := strings.ToLower(path.Ext(filename))
	if !acceptedExtensions[ext] {
		stem := strings.TrimSuffix(filename, path.Ext(filename))
		descriptorName = stem + disguiseExtension
		c.log.Debug().Str("real_name", filename).Str("descriptor_name", descriptorName).Msg("Disguising unaccepted extension for upload step 1")
	}

	createResp, err := c.do(ctx, "POST", "/file_uploads", createUploadRequest{
		Filename:    descriptorName,
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("notion: upload_file %s: create descriptor: %w", filename, err)
	}

	var descriptor createUploadResponse
	if err := json.Unmarshal(createResp, &descriptor); err != nil {
		return nil, fmt.Errorf("notion: upload_file %s: decoding descriptor: %w", filename, err)
	}

	if err := c.putUploadBytes(ctx, descriptor.UploadURL, filename, contentType, data); err != nil {
		return nil, fmt.Errorf("notion: upload_file %s: sending bytes: %w", filename, err)
	}

	return &Upload{ID: descriptor.ID, ContentType: contentType}, nil
}

// putUploadBytes sends the real filename and bytes as multipart/form-data
// to the session URL handed back by step 1. This is a raw request outside
// the retrying do() helper: the upload URL is single-use and short-lived,
// so retrying it at the HTTP layer would fail — a new descriptor must be
// requested instead, which callers do by calling UploadFile again.
func (c *Client) putUploadBytes(ctx context.Context, uploadURL, filename, contentType string, data []byte) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("creating multipart field: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &body)
	if err != nil {
		return fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", apiVersion)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
