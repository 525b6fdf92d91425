package engine

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigAppliesOnlySetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "flush_threshold: 4096\nmerge_enabled: false\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	e := &Engine{flushThreshold: defaultFlushThreshold, mergeThreshold: defaultMergeThreshold, mergeEnabled: true}
	for _, opt := range cfg.ToOptions() {
		opt(e)
	}

	if e.flushThreshold != 4096 {
		t.Errorf("flushThreshold = %d, want 4096", e.flushThreshold)
	}
	if e.mergeEnabled {
		t.Errorf("mergeEnabled = true, want false")
	}
	if e.mergeThreshold != defaultMergeThreshold {
		t.Errorf("mergeThreshold = %d, want default %d unchanged", e.mergeThreshold, defaultMergeThreshold)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
