// Package pipeline orchestrates one turn end to end: ingestion,
// staging, query synthesis, bounded execution and materialization.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/runger/sheetql/internal/answer"
	"github.com/runger/sheetql/internal/ingest"
	"github.com/runger/sheetql/internal/llm"
	"github.com/runger/sheetql/internal/staging"
	"github.com/runger/sheetql/internal/synth"
)

// Mode selects what a run produces.
type Mode int

const (
	// ModeQuestion answers in natural language.
	ModeQuestion Mode = iota
	// ModeTable materializes the result into a spreadsheet artifact.
	ModeTable
	// ModeAnalyzeOnly stops after schema introspection.
	ModeAnalyzeOnly
	// ModeSQLOnly stops after query synthesis.
	ModeSQLOnly
	// ModeExecuteSQL skips synthesis and runs a caller-provided query.
	ModeExecuteSQL
)

const defaultOutputPath = "final.xlsx"

// Request describes one pipeline run.
type Request struct {
	File     string
	Question string
	Mode     Mode
	Model    string

	// History carries prior conversation turns for multi-turn
	// sessions; synthesis sees them before the current question.
	History []llm.Message

	// UseCache keeps the staged store on disk and reuses it while the
	// source file's fingerprint is unchanged.
	UseCache bool

	Budget     time.Duration
	OutputPath string

	// Columns presets the narrowed column list, skipping the
	// narrowing call. SQL carries the query for ModeExecuteSQL.
	Columns string
	SQL     string
}

// Outcome is the structured result of a run.
type Outcome struct {
	Text           string
	ArtifactPath   string
	SQL            string
	RowCount       int
	Empty          bool
	BudgetExceeded bool
}

// Pipeline wires the collaborators one run needs. DataDir is where
// staged store files live.
type Pipeline struct {
	completer llm.Completer
	cache     *ingest.Cache
	logger    *zap.Logger
	dataDir   string
}

func New(c llm.Completer, cache *ingest.Cache, logger *zap.Logger, dataDir string) *Pipeline {
	if cache == nil {
		cache = ingest.NewCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{completer: c, cache: cache, logger: logger, dataDir: dataDir}
}

// Run executes one turn. Error returns are reserved for ingestion,
// staging, synthesis and unexpected execution failures; empty results
// and exceeded budgets are successful outcomes.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Outcome, error) {
	if req.Model == "" {
		req.Model = llm.DefaultModel
	}
	if req.Budget <= 0 {
		req.Budget = staging.DefaultBudget
	}
	if req.OutputPath == "" {
		req.OutputPath = defaultOutputPath
	}

	store, sheets, err := p.stage(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() {
		store.Close()
		if !req.UseCache {
			if rerr := store.Remove(); rerr != nil {
				p.logger.Warn("staged store cleanup failed", zap.Error(rerr))
			}
		}
	}()

	schema, err := store.Introspect(ctx)
	if err != nil {
		return nil, err
	}

	if req.Mode == ModeAnalyzeOnly {
		return &Outcome{Text: analysisText(schema, sheets)}, nil
	}

	query, err := p.synthesize(ctx, req, schema, sheets)
	if err != nil {
		return nil, err
	}
	if req.Mode == ModeSQLOnly {
		return &Outcome{Text: query, SQL: query}, nil
	}

	res, err := store.Execute(ctx, query, req.Budget)
	if err != nil {
		var qerr *staging.QueryError
		if errors.As(err, &qerr) {
			// Execution failures end the turn with a clarifying
			// question, like an empty result; the session goes on.
			p.logger.Warn("query execution failed",
				zap.String("sql", query),
				zap.Error(qerr))
			return &Outcome{
				SQL:   query,
				Empty: true,
				Text:  answer.ClarifyFailure(ctx, p.completer, req.Model, req.Question, qerr.Err.Error(), schema),
			}, nil
		}
		return nil, err
	}
	p.logger.Info("query executed",
		zap.Int("rows", len(res.Rows)),
		zap.Duration("elapsed", res.Elapsed),
		zap.Bool("budget_exceeded", res.BudgetExceeded))

	out := &Outcome{
		SQL:            query,
		RowCount:       len(res.Rows),
		BudgetExceeded: res.BudgetExceeded,
	}

	if res.Empty() {
		out.Empty = true
		if res.BudgetExceeded {
			out.Text = answer.ClarifyTimeout(ctx, p.completer, req.Model, req.Question)
		} else {
			out.Text = answer.Clarify(ctx, p.completer, req.Model, req.Question, schema)
		}
		return out, nil
	}

	switch req.Mode {
	case ModeTable, ModeExecuteSQL:
		writer := answer.NewWriter(p.completer, req.Model, p.logger)
		if err := writer.WriteWorkbook(ctx, req.Question, res, req.OutputPath); err != nil {
			return nil, err
		}
		out.ArtifactPath = req.OutputPath
		out.Text = answer.DescribeArtifact(ctx, p.completer, req.Model, req.Question, res)
	default:
		out.Text = answer.Describe(ctx, p.completer, req.Model, req.Question, res)
	}
	return out, nil
}

// stage fingerprints the source file and ensures a loaded staging
// store for it, reusing a cached one when its fingerprint matches and
// the store file is still present.
func (p *Pipeline) stage(ctx context.Context, req Request) (*staging.Store, []string, error) {
	fingerprint, err := ingest.Fingerprint(req.File)
	if err != nil {
		return nil, nil, err
	}
	storePath := staging.StorePath(p.dataDir, req.File)

	if req.UseCache {
		if ds, ok := p.cache.Get(fingerprint, storePath); ok {
			store, err := staging.Open(storePath, req.Budget)
			if err != nil {
				return nil, nil, err
			}
			p.logger.Info("staged store reused",
				zap.String("store", storePath),
				zap.String("fingerprint", fingerprint))
			return store, ds.Sheets, nil
		}
	}

	ds, err := ingest.ReadWorkbook(req.File)
	if err != nil {
		return nil, nil, err
	}

	store, err := staging.Open(storePath, req.Budget)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Load(ctx, ds); err != nil {
		store.Close()
		return nil, nil, err
	}
	p.logger.Info("workbook staged",
		zap.String("file", req.File),
		zap.Int("rows", len(ds.Rows)),
		zap.Int("sheets", len(ds.Sheets)))

	if req.UseCache {
		// Cache metadata only; the rows live in the store file.
		p.cache.Put(fingerprint, storePath, &ingest.Dataset{
			Fingerprint: ds.Fingerprint,
			Columns:     ds.Columns,
			Sheets:      ds.Sheets,
		})
	}
	return store, ds.Sheets, nil
}

// synthesize resolves the query for the run, either validating the
// caller's own SQL or asking the model for one.
func (p *Pipeline) synthesize(ctx context.Context, req Request, schema *staging.Schema, sheets []string) (string, error) {
	if req.Mode == ModeExecuteSQL {
		if err := synth.Validate(req.SQL); err != nil {
			return "", err
		}
		return req.SQL, nil
	}

	sreq := synth.Request{
		Question: req.Question,
		Schema:   schema,
		Sheets:   sheets,
		Columns:  req.Columns,
		Model:    req.Model,
		History:  req.History,
	}
	if sreq.Columns == "" {
		cols, err := synth.NarrowColumns(ctx, p.completer, sreq)
		if err != nil {
			p.logger.Warn("column narrowing failed, using all columns", zap.Error(err))
		} else {
			sreq.Columns = cols
		}
	}

	query, err := synth.GenerateSQL(ctx, p.completer, sreq)
	if err != nil {
		return "", err
	}
	p.logger.Info("query synthesized", zap.String("sql", query))
	return query, nil
}

func analysisText(schema *staging.Schema, sheets []string) string {
	text := fmt.Sprintf("Table '%s' columns:\n%s\nSample rows:\n%s", schema.Table, schema.String(), schema.SampleBlock())
	if len(sheets) > 1 {
		text += fmt.Sprintf("\nSource sheets (%d): %s", len(sheets), fmt.Sprint(sheets))
	}
	return text
}
