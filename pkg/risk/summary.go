package risk

import (
	"context"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/logflow/simlog/internal/model"
	serrors "github.com/logflow/simlog/pkg/errors"
	"github.com/logflow/simlog/pkg/resilience"
)

// Table holds the results of several logs for knowledge lengths 1..MaxBK.
type Table struct {
	Logs  []string
	MaxBK int

	// results[i][bk-1] belongs to Logs[i].
	results [][]*Result
}

// Result returns the entry for a log and knowledge length, or nil.
func (t *Table) Result(log string, bk int) *Result {
	if bk < 1 || bk > t.MaxBK {
		return nil
	}
	for i, name := range t.Logs {
		if name == log {
			return t.results[i][bk-1]
		}
	}
	return nil
}

// Header returns bk_length followed by cd_, td_ and uniq_matched_ columns
// for every log.
func (t *Table) Header() []string {
	h := []string{"bk_length"}
	for _, name := range t.Logs {
		h = append(h, "cd_"+name, "td_"+name, "uniq_matched_"+name)
	}
	return h
}

// Records returns one formatted row per knowledge length.
func (t *Table) Records() [][]string {
	rows := make([][]string, 0, t.MaxBK)
	for bk := 1; bk <= t.MaxBK; bk++ {
		row := []string{strconv.Itoa(bk)}
		for i := range t.Logs {
			r := t.results[i][bk-1]
			row = append(row,
				strconv.FormatFloat(r.CaseDisclosure, 'g', -1, 64),
				strconv.FormatFloat(r.TraceDisclosure, 'g', -1, 64),
				strconv.Itoa(len(r.UniqueMatched)),
			)
		}
		rows = append(rows, row)
	}
	return rows
}

// Summarize scores every log for knowledge lengths 1..maxBK with at most
// workers scorings in flight. Columns keep the order of logs. A scorer
// panic fails the summary with CodeScoringFailed.
func Summarize(ctx context.Context, scorer Scorer, logs []*model.Log, maxBK, workers int) (*Table, error) {
	if maxBK < 1 {
		return nil, serrors.New(serrors.CodeInvalidConfig, "max_bk_length must be positive").
			WithContext("max_bk_length", maxBK)
	}
	if workers < 1 {
		workers = 1
	}

	t := &Table{MaxBK: maxBK, results: make([][]*Result, len(logs))}
	for i, l := range logs {
		t.Logs = append(t.Logs, l.Name)
		t.results[i] = make([]*Result, maxBK)
	}

	guard := resilience.NewGuard(serrors.CodeScoringFailed)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, l := range logs {
		for bk := 1; bk <= maxBK; bk++ {
			g.Go(func() error {
				var r *Result
				err := guard.Do(gctx, l.Name, func(ctx context.Context) error {
					var err error
					r, err = scorer.Score(ctx, l, bk)
					return err
				})
				if err != nil {
					if serrors.IsCode(err, serrors.CodeContextCanceled) {
						return err
					}
					return serrors.Wrapf(err, serrors.CodeScoringFailed, "score %s", l.Name).
						WithContext("bk_length", bk)
				}
				t.results[i][bk-1] = r
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return t, nil
}
