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

package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
	"github.com/inkwell-ai/inkwell/pkg/docmeta"
	"github.com/inkwell-ai/inkwell/pkg/ingest"
	"github.com/inkwell-ai/inkwell/pkg/server"
	"github.com/inkwell-ai/inkwell/pkg/store"
)

// ServeCmd starts the HTTP service.
type ServeCmd struct {
	Host string `help:"Bind address; overrides config."`
	Port int    `help:"Bind port; overrides config."`
}

func (c *ServeCmd) Run(env *runEnv) error {
	a, err := newApp(env.ctx, env.cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.rebuildKeywords(env.ctx); err != nil {
		return err
	}

	cfg := env.cfg.Server
	if c.Host != "" {
		cfg.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Port = c.Port
	}

	srv := server.New(cfg, server.Deps{
		Store:     a.store,
		Processor: a.processor,
		Retriever: a.retriever,
		Chat:      a.chat,
		Index:     a.index,
		Keywords:  a.keywords,
	})
	return srv.Start(env.ctx)
}

// IngestCmd ingests one file or every supported file in a directory.
type IngestCmd struct {
	Path                 string   `arg:"" help:"File or directory to ingest." type:"path"`
	DocType              string   `name:"doc-type" help:"Document type override."`
	Year                 int      `help:"Document year override."`
	Programs             []string `help:"Program names to link."`
	Tags                 []string `help:"Tags to attach."`
	Outcome              string   `help:"Outcome (funded, not_funded, pending, final_report)."`
	Funder               string   `help:"Funder name."`
	Sensitive            bool     `help:"Mark the document sensitive."`
	SensitivityConfirmed bool     `name:"sensitivity-confirmed" help:"Confirm the sensitivity review happened."`
	Principal            string   `help:"Acting principal recorded in the audit trail." default:"cli"`
}

func (c *IngestCmd) Run(env *runEnv) error {
	if !c.SensitivityConfirmed {
		return apperr.New(apperr.KindValidation,
			"ingest requires an explicit sensitivity confirmation").
			WithAction("re-run with --sensitivity-confirmed after reviewing the content")
	}

	a, err := newApp(env.ctx, env.cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	user := docmeta.UserInput{
		DocType:  c.DocType,
		Year:     c.Year,
		Programs: c.Programs,
		Tags:     c.Tags,
		Outcome:  c.Outcome,
		Funder:   c.Funder,
	}
	confirmedAt := time.Now().UTC()

	info, err := os.Stat(c.Path)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "cannot access path", err)
	}

	if info.IsDir() {
		results, err := a.processor.ProcessDirectory(env.ctx, ingest.BatchRequest{
			Dir:                    c.Path,
			User:                   user,
			IsSensitive:            c.Sensitive,
			SensitivityConfirmedAt: confirmedAt,
			Principal:              c.Principal,
		})
		if err != nil {
			return err
		}
		var failed int
		for _, r := range results {
			if r.Err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", r.Path, r.Err)
				continue
			}
			fmt.Printf("ok   %s (%d chunks)\n", r.Path, r.Chunks)
			for _, warning := range r.Warnings {
				fmt.Printf("     warning: %s\n", warning)
			}
		}
		a.processor.Wait()
		if failed > 0 {
			return apperr.Newf(apperr.KindValidation, "%d of %d files failed", failed, len(results))
		}
		return nil
	}

	data, err := os.ReadFile(c.Path)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "cannot read file", err)
	}
	result, err := a.processor.Process(env.ctx, ingest.Request{
		Data:                   data,
		Filename:               info.Name(),
		User:                   user,
		IsSensitive:            c.Sensitive,
		SensitivityConfirmedAt: confirmedAt,
		Principal:              c.Principal,
	})
	if err != nil {
		return err
	}
	a.processor.Wait()

	fmt.Printf("ok   %s → %s (%d chunks)\n", info.Name(), result.Document.ID, result.Document.ChunkCount)
	for _, warning := range result.Warnings {
		fmt.Printf("     warning: %s\n", warning)
	}
	return nil
}

// ReindexCmd force-rebuilds the keyword index from the vector store.
type ReindexCmd struct{}

func (c *ReindexCmd) Run(env *runEnv) error {
	a, err := newApp(env.ctx, env.cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	if err := a.rebuildKeywords(env.ctx); err != nil {
		return err
	}
	fmt.Printf("keyword index rebuilt in %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

// CacheFlushCmd asks a running service to clear its query cache. The
// cache lives in the server process, so this is an HTTP call.
type CacheFlushCmd struct {
	URL string `help:"Base URL of the running service." default:"http://localhost:8080"`
}

func (c *CacheFlushCmd) Run(env *runEnv) error {
	req, err := http.NewRequestWithContext(env.ctx, http.MethodPost, c.URL+"/api/cache/flush", nil)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid service URL", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "service is not reachable", err).
			WithAction("start the service with `inkwell serve` or pass --url")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apperr.Newf(apperr.KindInternal, "cache flush failed with status %d", resp.StatusCode)
	}
	fmt.Println("query cache flushed")
	return nil
}

// MigrateCmd creates or updates the metadata store schema.
type MigrateCmd struct{}

func (c *MigrateCmd) Run(env *runEnv) error {
	// Opening the store applies the schema.
	st, err := store.Open(env.cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Ping(env.ctx); err != nil {
		return err
	}
	fmt.Println("metadata store schema is up to date")
	return nil
}
