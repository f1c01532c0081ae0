package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gyeh/welfarebill/internal/dedup"
	"github.com/gyeh/welfarebill/internal/group"
	"github.com/gyeh/welfarebill/internal/model"
	"github.com/gyeh/welfarebill/internal/render"
	"github.com/gyeh/welfarebill/internal/snapshot"
)

// RenderResult describes a finished render.
type RenderResult struct {
	FileName string
	Path     string // set by RenderToDir
	Groups   []model.RowGroup
	Keys     dedup.SaveResult
	Archive  model.ArchiveEntry
	Summary  model.RunSummary
}

// Render groups the approved rows and writes the workbook to w. Settings are
// checked before anything is written. Only after w accepted the whole
// workbook does batch 1 record its keys, the archive get an entry and, when
// configured, the snapshot file get written; failures there are logged, not
// returned.
func (s *Session) Render(ctx context.Context, w io.Writer, csvName string) (*RenderResult, error) {
	return s.render(ctx, csvName, func(_ string, data []byte) (string, error) {
		_, err := w.Write(data)
		return "", err
	})
}

// RenderToDir is Render into dir under the conventional file name. The file
// is written to a temp name and renamed into place, so keys and archive are
// only recorded once the workbook exists on disk.
func (s *Session) RenderToDir(ctx context.Context, dir, csvName string) (*RenderResult, error) {
	return s.render(ctx, csvName, func(name string, data []byte) (string, error) {
		return writeFileAtomic(dir, name, data)
	})
}

func writeFileAtomic(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp workbook: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write temp workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp workbook: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("move workbook into place: %w", err)
	}
	return path, nil
}

// emitFunc delivers the finished workbook and reports where it went.
type emitFunc func(fileName string, data []byte) (string, error)

func (s *Session) render(ctx context.Context, csvName string, emit emitFunc) (*RenderResult, error) {
	totalStart := time.Now()

	if err := s.cfg.ValidateSettings(); err != nil {
		return nil, &PipelineError{Phase: "settings", Err: err}
	}

	built := group.Build(s.Rows(), s.log)
	s.summary.RowsSkipped = built.Skipped
	s.summary.PreviousMonth = 0
	for i := range built.Groups {
		if built.Groups[i].PreviousMonth() {
			s.summary.PreviousMonth++
		}
	}

	settings := render.Settings{
		PharmacyName: s.cfg.PharmacyName,
		MedicalCode:  s.cfg.MedicalCode,
		Municipality: s.cfg.MunicipalityName,
		YearMonth:    s.month,
	}

	// Render into memory so a failed render leaves the destination untouched.
	start := time.Now()
	var buf bytes.Buffer
	r := &render.Renderer{TemplatePath: s.cfg.TemplatePath, Log: s.log}
	n, err := r.Render(&buf, built.Groups, settings)
	if err != nil {
		return nil, &PipelineError{Phase: "render", Err: err}
	}

	res := &RenderResult{
		FileName: render.FileName(settings, s.cfg.Batch, s.now()),
		Groups:   built.Groups,
	}
	res.Path, err = emit(res.FileName, buf.Bytes())
	if err != nil {
		return nil, &PipelineError{Phase: "write", Err: fmt.Errorf("write workbook: %w", err)}
	}
	s.summary.RowsRendered = n
	s.summary.DurationRender = time.Since(start)

	if s.cfg.Batch == 1 && s.month != "" {
		keys, err := s.dedup.Save(ctx, s.month, group.Patients(built.Groups))
		if err != nil {
			s.log.Warn().Err(err).Str("month", s.month).Msg("processed keys not saved")
		} else {
			s.log.Info().
				Str("month", s.month).
				Int("added", keys.Added).
				Int("stored", keys.Stored).
				Bool("trimmed", keys.Trimmed).
				Msg("saved processed keys")
		}
		res.Keys = keys
		s.summary.KeysSaved = keys.Added
	}

	res.Archive = s.archive.Append(ctx, model.ArchiveEntry{
		FileName:     res.FileName,
		CSVFileName:  csvName,
		BatchNumber:  s.cfg.Batch,
		PatientCount: n,
		PharmacyName: s.cfg.PharmacyName,
	})

	if s.cfg.SnapshotPath != "" {
		rows := snapshot.Rows(built.Groups, s.cfg.Batch, s.hash)
		if err := snapshot.Write(s.cfg.SnapshotPath, rows); err != nil {
			s.log.Warn().Err(err).Str("path", s.cfg.SnapshotPath).Msg("snapshot not written")
		} else {
			s.log.Info().Str("path", s.cfg.SnapshotPath).Int("rows", len(rows)).Msg("wrote snapshot")
		}
	}

	s.summary.DurationTotal = time.Since(totalStart)
	res.Summary = s.summary

	s.log.Info().
		Str("file", res.FileName).
		Int("rows_rendered", n).
		Int("rows_skipped", built.Skipped).
		Int("previous_month_rows", s.summary.PreviousMonth).
		Str("total_duration", s.summary.DurationTotal.String()).
		Msg("render complete")

	return res, nil
}
