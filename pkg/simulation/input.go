package simulation

import (
	"context"

	serrors "github.com/logflow/simlog/pkg/errors"
	"github.com/logflow/simlog/pkg/frequency"
	"github.com/logflow/simlog/pkg/parser"
	"github.com/logflow/simlog/pkg/processtree"
)

// Input is one process model with its observed frequencies.
type Input struct {
	Name        string
	Tree        *processtree.Tree
	Frequencies frequency.Map
}

// Source locates the files of an input.
type Source struct {
	Name string
	Tree string
	// Frequencies wins over Log when both are set.
	Frequencies string
	Log         string
	// Silent supplies counts for silent leaves when counting from Log.
	Silent     frequency.Map
	LogOptions frequency.LogOptions
}

// Paths returns the files the input is read from.
func (s Source) Paths() []string {
	out := []string{s.Tree}
	if s.Frequencies != "" {
		out = append(out, s.Frequencies)
	} else if s.Log != "" {
		out = append(out, s.Log)
	}
	return out
}

// LoadInput reads the tree and frequencies of src. Counting from a log
// requires every leaf of the tree to have its own frequency name.
func LoadInput(ctx context.Context, src Source) (*Input, error) {
	tree, err := processtree.Load(src.Tree)
	if err != nil {
		return nil, err
	}

	var freq frequency.Map
	switch {
	case src.Frequencies != "":
		freq, err = frequency.LoadFile(src.Frequencies)
		if err != nil {
			return nil, err
		}
	case src.Log != "":
		if err := tree.CheckDistinctNames(); err != nil {
			if se, ok := err.(*serrors.SimlogError); ok {
				return nil, se.WithContext("input", src.Name).WithContext("log", src.Log)
			}
			return nil, err
		}
		log, err := parser.ReadFile(ctx, src.Log, parser.DefaultConfig())
		if err != nil {
			return nil, err
		}
		freq = frequency.FromLog(log, src.LogOptions, src.Silent)
	default:
		return nil, serrors.New(serrors.CodeInvalidConfig, "input has no frequency source").
			WithContext("input", src.Name)
	}

	return &Input{Name: src.Name, Tree: tree, Frequencies: freq}, nil
}
