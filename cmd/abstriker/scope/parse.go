package scope

import (
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/ruby"
)

var (
	ErrNoSource  = errors.New("source unit unavailable")
	ErrParseTree = errors.New("tree-sitter returned no tree")
)

// Parse parses src with the Ruby grammar. The caller owns the returned tree
// and must Close it.
func Parse(ctx context.Context, src []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(ruby.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	if tree == nil || tree.RootNode() == nil {
		return nil, ErrParseTree
	}
	return tree, nil
}

// Line returns the 1-based line a node starts on.
func Line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}
