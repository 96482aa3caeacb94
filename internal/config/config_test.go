package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validPipeline() Pipeline {
	p := Pipeline{
		Job:     "dataco",
		Dataset: "dataco_supplychain",
		Storage: Storage{Kind: "sqlite", DSN: "file:medallion.db"},
	}
	p.Normalize(time.Date(2017, 10, 2, 9, 0, 0, 0, time.UTC))
	return p
}

func TestNormalizeDefaults(t *testing.T) {
	p := Pipeline{Dataset: "dataco_supplychain"}
	p.Normalize(time.Date(2017, 10, 2, 9, 0, 0, 0, time.UTC))

	if p.Job != "dataco_supplychain" {
		t.Fatalf("Job = %q", p.Job)
	}
	if p.BatchID != "run_20171002" {
		t.Fatalf("BatchID = %q", p.BatchID)
	}
	if p.Source.Kind != "table" || p.Source.Encoding != "utf8" {
		t.Fatalf("Source defaults = %+v", p.Source)
	}

	want := map[string]string{
		p.Tables.Source:  "dataco_supplychain_source",
		p.Tables.Raw:     "dataco_supplychain_raw",
		p.Tables.Audited: "dataco_supplychain_audited",
		p.Tables.CleanV1: "dataco_supplychain_clean_v1",
		p.Tables.CleanV2: "dataco_supplychain_clean_v2",
		p.Tables.CleanV3: "dataco_supplychain_clean_v3",
		p.Tables.Current: "dataco_supplychain_clean_current",
		p.Tables.Fixes:   "ref_text_fixes",
	}
	for got, exp := range want {
		if got != exp {
			t.Fatalf("table default = %q, want %q", got, exp)
		}
	}
}

func TestNormalizeKeepsExplicitNames(t *testing.T) {
	p := Pipeline{
		Dataset: "dataco_supplychain",
		BatchID: "day1_initial",
		Tables:  Tables{Raw: "landing_zone"},
	}
	p.Normalize(time.Now())

	if p.BatchID != "day1_initial" {
		t.Fatalf("BatchID overwritten: %q", p.BatchID)
	}
	if p.Tables.Raw != "landing_zone" {
		t.Fatalf("Raw overwritten: %q", p.Tables.Raw)
	}
}

func TestLoadExpandsEnvInDSN(t *testing.T) {
	t.Setenv("TEST_MEDALLION_DB", "file:from_env.db")

	path := filepath.Join(t.TempDir(), "pipeline.json")
	body := `{
  "job": "dataco",
  "dataset": "dataco_supplychain",
  "storage": {"kind": "sqlite", "dsn": "${TEST_MEDALLION_DB}"}
}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Storage.DSN != "file:from_env.db" {
		t.Fatalf("DSN = %q", p.Storage.DSN)
	}
	if p.Tables.Current == "" {
		t.Fatal("Load did not normalize defaults")
	}
}

func TestLoadRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted malformed JSON")
	}
}

func TestValidatePipelineAcceptsValid(t *testing.T) {
	if issues := ValidatePipeline(validPipeline()); len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
}

func TestValidatePipelineFindings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Pipeline)
		path    string
		severe  IssueSeverity
	}{
		{
			name:   "missing_job",
			mutate: func(p *Pipeline) { p.Job = " " },
			path:   "job",
			severe: SeverityError,
		},
		{
			name:   "missing_dsn",
			mutate: func(p *Pipeline) { p.Storage.DSN = "" },
			path:   "storage.dsn",
			severe: SeverityError,
		},
		{
			name:   "unknown_storage_kind",
			mutate: func(p *Pipeline) { p.Storage.Kind = "duckdb" },
			path:   "storage.kind",
			severe: SeverityWarning,
		},
		{
			name:   "unknown_source_kind",
			mutate: func(p *Pipeline) { p.Source.Kind = "kafka" },
			path:   "source.kind",
			severe: SeverityError,
		},
		{
			name: "csv_missing_path",
			mutate: func(p *Pipeline) {
				p.Source.Kind = "csv"
				p.Source.Path = ""
			},
			path:   "source.path",
			severe: SeverityError,
		},
		{
			name: "csv_bad_encoding",
			mutate: func(p *Pipeline) {
				p.Source.Kind = "csv"
				p.Source.Path = "data.csv"
				p.Source.Encoding = "utf16"
			},
			path:   "source.encoding",
			severe: SeverityError,
		},
		{
			name: "csv_multichar_comma",
			mutate: func(p *Pipeline) {
				p.Source.Kind = "csv"
				p.Source.Path = "data.csv"
				p.Source.Comma = ";;"
			},
			path:   "source.comma",
			severe: SeverityError,
		},
		{
			name:   "negative_batch_size",
			mutate: func(p *Pipeline) { p.Runtime.BatchSize = -1 },
			path:   "runtime.batch_size",
			severe: SeverityError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := validPipeline()
			tc.mutate(&p)

			issues := ValidatePipeline(p)
			for _, iss := range issues {
				if iss.Path == tc.path && iss.Severity == tc.severe {
					return
				}
			}
			t.Fatalf("no %s issue at %s; got %v", tc.severe, tc.path, issues)
		})
	}
}

func TestIssueErrorString(t *testing.T) {
	iss := Issue{Severity: SeverityError, Path: "storage.dsn", Message: "must not be empty"}
	want := "error at storage.dsn: must not be empty"
	if iss.Error() != want {
		t.Fatalf("Error() = %q, want %q", iss.Error(), want)
	}
}
