package merge

import (
	"context"

	"github.com/systemshift/memex-vc/internal/model"
)

// LinkMerger merges the child-link lists of a document.
type LinkMerger func(ctx context.Context, original []string, modifications [][]string) ([]string, error)

// PlainLinks merges links by id.
func PlainLinks(_ context.Context, original []string, modifications [][]string) ([]string, error) {
	return MergeLinks(original, modifications)
}

// MergeDocuments merges documents of a known kind field by field, with links
// merged through links. When the modifications change the kind, the whole
// document is merged as one value.
func MergeDocuments(ctx context.Context, original model.Document, modifications []model.Document, links LinkMerger) (model.Document, error) {
	for _, d := range append([]model.Document{original}, modifications...) {
		if op, ok := d.(*model.Opaque); ok {
			return nil, &model.UnsupportedMergeError{Type: string(op.Kind)}
		}
	}
	for _, m := range modifications {
		if m.EntityType() != original.EntityType() {
			return mergeWhole(original, modifications)
		}
	}

	switch o := original.(type) {
	case *model.Page:
		mods := make([]*model.Page, len(modifications))
		for i, m := range modifications {
			mods[i] = m.(*model.Page)
		}
		return mergePage(ctx, o, mods, links)
	case *model.TextNode:
		mods := make([]*model.TextNode, len(modifications))
		for i, m := range modifications {
			mods[i] = m.(*model.TextNode)
		}
		return mergeTextNode(ctx, o, mods, links)
	case *model.Title:
		titles := make([]string, len(modifications))
		for i, m := range modifications {
			titles[i] = m.(*model.Title).Title
		}
		title, err := MergeResult(o.Title, titles)
		if err != nil {
			return nil, conflictOn("title", err)
		}
		return &model.Title{Title: title}, nil
	}
	return nil, &model.UnsupportedMergeError{Type: string(original.EntityType())}
}

func mergePage(ctx context.Context, o *model.Page, mods []*model.Page, links LinkMerger) (model.Document, error) {
	titles := make([]string, len(mods))
	pages := make([][]string, len(mods))
	for i, m := range mods {
		titles[i] = m.Title
		pages[i] = m.Links()
	}
	title, err := MergeResult(o.Title, titles)
	if err != nil {
		return nil, conflictOn("title", err)
	}
	merged, err := links(ctx, o.Links(), pages)
	if err != nil {
		return nil, conflictOn("pages", err)
	}
	return (&model.Page{Title: title}).WithLinks(merged), nil
}

func mergeTextNode(ctx context.Context, o *model.TextNode, mods []*model.TextNode, links LinkMerger) (model.Document, error) {
	texts := make([]string, len(mods))
	styles := make([]string, len(mods))
	children := make([][]string, len(mods))
	for i, m := range mods {
		texts[i] = m.Text
		styles[i] = m.Style
		children[i] = m.Links()
	}
	text, err := MergeStrings(o.Text, texts)
	if err != nil {
		return nil, conflictOn("text", err)
	}
	style, err := MergeResult(o.Style, styles)
	if err != nil {
		return nil, conflictOn("style", err)
	}
	merged, err := links(ctx, o.Links(), children)
	if err != nil {
		return nil, conflictOn("links", err)
	}
	return (&model.TextNode{Text: text, Style: style}).WithLinks(merged), nil
}

// mergeWhole treats each document as one opaque value compared by id.
func mergeWhole(original model.Document, modifications []model.Document) (model.Document, error) {
	origID, err := model.Hash(original)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(modifications))
	byID := make(map[string]model.Document, len(modifications))
	for i, m := range modifications {
		if ids[i], err = model.Hash(m); err != nil {
			return nil, err
		}
		byID[ids[i]] = m
	}
	id, err := MergeResult(origID, ids)
	if err != nil {
		return nil, conflictOn("document", err)
	}
	if id == origID {
		return original, nil
	}
	return byID[id], nil
}
