// Package config provides configuration models and helpers for pipeline runs.
//
// A Pipeline is decoded from a JSON file selected on the command line. Table
// names and the batch id are optional; Normalize fills them from the dataset
// name and the run date so a minimal config stays minimal.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Pipeline is the top-level pipeline configuration.
type Pipeline struct {
	// Job identifies the run for logs and metric labels.
	Job string `json:"job"`

	// BatchID tags every bronze row of this run. Empty means run_YYYYMMDD.
	BatchID string `json:"batch_id"`

	Storage Storage `json:"storage"`

	// Dataset is the base name the default table names derive from.
	Dataset string `json:"dataset"`

	Tables Tables `json:"tables"`

	Source Source `json:"source"`

	Runtime RuntimeConfig `json:"runtime"`
}

// Storage selects the warehouse backend.
type Storage struct {
	// Kind: "sqlite" | "postgres" | "mssql".
	Kind string `json:"kind"`
	// DSN is passed to the backend verbatim after environment expansion,
	// so secrets can live in the environment ("${PGPASSWORD}").
	DSN string `json:"dsn"`
}

// Tables names every table the pipeline touches. Empty entries default from
// the dataset name (see Normalize).
type Tables struct {
	// Source is the pre-existing landing table read when source.kind is
	// "table".
	Source string `json:"source"`

	Raw     string `json:"raw"`
	Audited string `json:"audited"`
	CleanV1 string `json:"clean_v1"`
	CleanV2 string `json:"clean_v2"`
	CleanV3 string `json:"clean_v3"`

	// Current is the view aliasing the newest clean version.
	Current string `json:"current"`

	// Fixes is the curated correction table.
	Fixes string `json:"fixes"`
}

// Source describes where raw rows come from.
type Source struct {
	// Kind: "table" (read Tables.Source from the warehouse) or "csv".
	Kind string `json:"kind"`

	// Path is the CSV file location (csv kind only).
	Path string `json:"path"`

	// Encoding of the CSV file: "utf8" (default) or "latin1".
	Encoding string `json:"encoding"`

	// Comma overrides the CSV field delimiter (single character, default ",").
	Comma string `json:"comma"`
}

// RuntimeConfig controls pipeline execution behavior.
type RuntimeConfig struct {
	// BatchSize bounds rows per insert statement where a backend chunks
	// writes. Zero means backend default.
	BatchSize int `json:"batch_size"`
}

// Load reads and decodes a pipeline config file, then normalizes defaults.
// DSNs are environment-expanded.
func Load(path string) (Pipeline, error) {
	var p Pipeline

	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("config: parse %s: %w", path, err)
	}

	p.Storage.DSN = os.ExpandEnv(p.Storage.DSN)
	p.Normalize(time.Now())
	return p, nil
}

// Normalize fills defaulted fields in place. now supplies the date for the
// default batch id.
func (p *Pipeline) Normalize(now time.Time) {
	if p.Job == "" {
		p.Job = p.Dataset
	}
	if p.BatchID == "" {
		p.BatchID = "run_" + now.UTC().Format("20060102")
	}
	if p.Source.Kind == "" {
		p.Source.Kind = "table"
	}
	if p.Source.Encoding == "" {
		p.Source.Encoding = "utf8"
	}

	d := p.Dataset
	def := func(field *string, suffix string) {
		if *field == "" && d != "" {
			*field = d + suffix
		}
	}
	def(&p.Tables.Source, "_source")
	def(&p.Tables.Raw, "_raw")
	def(&p.Tables.Audited, "_audited")
	def(&p.Tables.CleanV1, "_clean_v1")
	def(&p.Tables.CleanV2, "_clean_v2")
	def(&p.Tables.CleanV3, "_clean_v3")
	def(&p.Tables.Current, "_clean_current")
	if p.Tables.Fixes == "" {
		p.Tables.Fixes = "ref_text_fixes"
	}
}
