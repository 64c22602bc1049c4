package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLocalStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir(), "/uploads/")
	if err != nil {
		t.Fatal(err)
	}

	res, err := store.UploadFile(ctx, strings.NewReader("<svg/>"), "templates/t1/backgrounds/1_5_p.svg", "image/svg+xml")
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if res.Size != 6 || res.PublicURL != "/uploads/templates/t1/backgrounds/1_5_p.svg" {
		t.Errorf("upload result = %+v", res)
	}

	stored := filepath.Join(store.Dir(), filepath.FromSlash(res.ObjectName))
	body, err := os.ReadFile(stored)
	if err != nil {
		t.Fatalf("stored file: %v", err)
	}
	if string(body) != "<svg/>" {
		t.Errorf("read %q", body)
	}

	if err := store.DeleteFile(ctx, res.ObjectName); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if err := store.DeleteFile(ctx, res.ObjectName); err != nil {
		t.Errorf("deleting a missing file: %v", err)
	}
	if _, err := os.Stat(stored); !os.IsNotExist(err) {
		t.Errorf("file after delete: %v", err)
	}
}

func TestLocalStore_RejectsEscapingNames(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "/uploads")
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"", "..", "../secret.png", "a/../../b.png", "/etc/passwd"} {
		if _, err := store.GetSignedURL(name, time.Minute); err == nil {
			t.Errorf("GetSignedURL(%q) succeeded", name)
		}
		if _, err := store.UploadFile(context.Background(), strings.NewReader("x"), name, ""); err == nil {
			t.Errorf("UploadFile(%q) succeeded", name)
		}
	}
}

func TestGenerateBackgroundObjectName(t *testing.T) {
	name := GenerateBackgroundObjectName("tpl-1", 3, "floor plan.png")

	if !strings.HasPrefix(name, "templates/tpl-1/backgrounds/3_") || !strings.HasSuffix(name, "_floor_plan.png") {
		t.Errorf("object name = %q", name)
	}
}
