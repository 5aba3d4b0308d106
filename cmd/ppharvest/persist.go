package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arkivist/pullpush-archive-client/internal/report"
	"github.com/arkivist/pullpush-archive-client/pkg/harvest"
	"github.com/arkivist/pullpush-archive-client/pkg/logging"
	"github.com/arkivist/pullpush-archive-client/pkg/types"
)

// persistResult writes the harvest output: the main result keyed by ID,
// duplicate observations when any exist, and an optional HTML report.
func persistResult(cfg *Config, flags *fetchFlags, result *harvest.Result) error {
	if err := ensureDir(cfg.Output.Dir); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(cfg.Output.Dir, flags.name+".json")
	data, err := encodeKeyed(result.Records, cfg.Output.Fields)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	dupes := make(map[string][]*types.Record, len(result.Dupes)+len(result.CommentDupes))
	for id, variants := range result.Dupes {
		dupes[id] = variants
	}
	for id, variants := range result.CommentDupes {
		dupes[id] = append(dupes[id], variants...)
	}
	if len(dupes) > 0 {
		dupePath := filepath.Join(cfg.Output.Dir, "dupes_"+flags.name+".json")
		data, err := json.MarshalIndent(dupes, "", "  ")
		if err != nil {
			return fmt.Errorf("encode dupes: %w", err)
		}
		if err := os.WriteFile(dupePath, data, 0o644); err != nil {
			return fmt.Errorf("write dupes: %w", err)
		}
	}

	if flags.report {
		if len(result.Records) == 0 {
			logger := logging.NewLogger("ppharvest")
			logger.Warn().Msg("No records harvested; skipping report")
			return nil
		}
		reportPath := filepath.Join(cfg.Output.Dir, flags.name+"_report.html")
		f, err := os.Create(reportPath)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer f.Close()
		if err := report.Write(f, flags.name, result.Records); err != nil {
			return err
		}
	}

	return nil
}

// encodeKeyed renders records as one JSON object keyed by record ID, in the
// result's order. An optional field list projects each record down before
// encoding; "comments" in the list keeps attached comments.
func encodeKeyed(records []*types.Record, fields []string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, rec := range records {
		var doc any = rec
		if len(fields) > 0 {
			projected, err := rec.Project(fields)
			if err != nil {
				return nil, fmt.Errorf("project record %s: %w", rec.ID, err)
			}
			doc = projected
		}
		body, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode record %s: %w", rec.ID, err)
		}
		key, _ := json.Marshal(rec.ID)
		buf.WriteString("  ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(body)
		if i < len(records)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}
