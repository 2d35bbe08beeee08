package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.APIPort != "8080" {
		t.Fatalf("unexpected API port %q", cfg.APIPort)
	}
	if cfg.ChunkSize != 512 || cfg.ChunkOverlap != 64 {
		t.Fatalf("unexpected chunking defaults: %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.RAGTopK != 10 || cfg.HistoryWindow != 10 {
		t.Fatalf("unexpected retrieval defaults: topK=%d history=%d", cfg.RAGTopK, cfg.HistoryWindow)
	}
	if cfg.VectorSize != 768 {
		t.Fatalf("unexpected vector size %d", cfg.VectorSize)
	}
	if cfg.WorkerConcurrency != 4 {
		t.Fatalf("unexpected worker concurrency %d", cfg.WorkerConcurrency)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "256")
	t.Setenv("RAG_TOP_K", "5")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("WORKER_CONCURRENCY", "not-a-number")

	cfg := Load()
	if cfg.ChunkSize != 256 {
		t.Fatalf("override not applied: %d", cfg.ChunkSize)
	}
	if cfg.RAGTopK != 5 {
		t.Fatalf("override not applied: %d", cfg.RAGTopK)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("override not applied: %v", cfg.RateLimitRPS)
	}
	// Unparseable values fall back to the default.
	if cfg.WorkerConcurrency != 4 {
		t.Fatalf("expected fallback concurrency, got %d", cfg.WorkerConcurrency)
	}
}

func TestMaxUploadBytes(t *testing.T) {
	cfg := Config{MaxUploadSizeMB: 50}
	if got := cfg.MaxUploadBytes(); got != 50<<20 {
		t.Fatalf("expected %d bytes for 50 MB, got %d", 50<<20, got)
	}
}
