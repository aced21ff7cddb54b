package notion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestUploadFile_DisguisesUnacceptedExtension(t *testing.T) {
	var descriptorFilename string
	var uploadedRealFilename string

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/file_uploads", func(w http.ResponseWriter, r *http.Request) {
		var req createUploadRequest
		json.NewDecoder(r.Body).Decode(&req)
		descriptorFilename = req.Filename
		json.NewEncoder(w).Encode(createUploadResponse{ID: "upload-1", UploadURL: server.URL + "/upload-session"})
	})
	mux.HandleFunc("/upload-session", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		_, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		uploadedRealFilename = header.Filename
		w.WriteHeader(http.StatusOK)
	})

	c := NewClient("test-token")
	c.httpClient = server.Client()
	overrideBaseURLForTest(t, server.URL)

	upload, err := c.UploadFile(context.Background(), "winmail.dat", "application/octet-stream", []byte("hello"))
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if upload.ID != "upload-1" {
		t.Errorf("expected upload id 'upload-1', got %q", upload.ID)
	}
	if !strings.HasSuffix(descriptorFilename, disguiseExtension) {
		t.Errorf("expected descriptor filename to use disguise extension, got %q", descriptorFilename)
	}
	if uploadedRealFilename != "winmail.dat" {
		t.Errorf("expected real filename uploaded in step 2, got %q", uploadedRealFilename)
	}
}

func TestUploadFile_AcceptedExtensionKeepsRealName(t *testing.T) {
	var descriptorFilename string

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/file_uploads", func(w http.ResponseWriter, r *http.Request) {
		var req createUploadRequest
		json.NewDecoder(r.Body).Decode(&req)
		descriptorFilename = req.Filename
		json.NewEncoder(w).Encode(createUploadResponse{ID: "upload-2", UploadURL: server.URL + "/upload-session"})
	})
	mux.HandleFunc("/upload-session", func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		w.WriteHeader(http.StatusOK)
	})

	c := NewClient("test-token")
	c.httpClient = server.Client()
	overrideBaseURLForTest(t, server.URL)

	if _, err := c.UploadFile(context.Background(), "report.pdf", "application/pdf", []byte("hi")); err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if descriptorFilename != "report.pdf" {
		t.Errorf("expected accepted extension to pass through unchanged, got %q", descriptorFilename)
	}
}

func TestUploadFile_RejectsOversizedFile(t *testing.T) {
	c := NewClient("test-token")
	data := make([]byte, MaxUploadSize+1)
	_, err := c.UploadFile(context.Background(), "big.png", "image/png", data)
	if err == nil {
		t.Fatal("expected error for file exceeding size limit")
	}
}
