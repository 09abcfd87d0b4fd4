// Copyright 2025 Inkwell Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
	"github.com/inkwell-ai/inkwell/pkg/docmeta"
)

// FileResult is the outcome of one file in a batch run.
type FileResult struct {
	Path     string
	DocID    string
	Chunks   int
	Warnings []string
	Err      error
}

// BatchRequest ingests every supported file under a directory.
type BatchRequest struct {
	Dir                    string
	User                   docmeta.UserInput
	IsSensitive            bool
	SensitivityConfirmedAt time.Time
	Principal              string
}

// ProcessDirectory ingests the directory's supported files with
// bounded parallelism. Per-file failures are recorded, not fatal; the
// returned error covers only directory-level problems.
func (p *Processor) ProcessDirectory(ctx context.Context, req BatchRequest) ([]FileResult, error) {
	entries, err := os.ReadDir(req.Dir)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "failed to read directory", err).
			WithField("dir", req.Dir)
	}

	supported := make(map[string]bool)
	for _, ext := range p.registry.SupportedExtensions() {
		supported[ext] = true
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if supported[ext] {
			paths = append(paths, filepath.Join(req.Dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	results := make([]FileResult, len(paths))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrent)
	for i, path := range paths {
		g.Go(func() error {
			result := FileResult{Path: path}

			data, err := os.ReadFile(path)
			if err != nil {
				result.Err = apperr.Wrap(apperr.KindValidation, "failed to read file", err)
			} else {
				res, err := p.Process(gctx, Request{
					Data:                   data,
					Filename:               filepath.Base(path),
					User:                   req.User,
					IsSensitive:            req.IsSensitive,
					SensitivityConfirmedAt: req.SensitivityConfirmedAt,
					Principal:              req.Principal,
				})
				if err != nil {
					result.Err = err
				} else {
					result.DocID = res.Document.ID
					result.Chunks = res.Document.ChunkCount
					result.Warnings = res.Warnings
				}
			}

			mu.Lock()
			results[i] = result
			mu.Unlock()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
