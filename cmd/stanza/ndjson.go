package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aretw0/stanza"
	"github.com/aretw0/stanza/pkg/domain"
)

// ndjsonRequest is one line of input in --json mode.
type ndjsonRequest struct {
	Action string         `json:"action"`
	Block  string         `json:"block,omitempty"`
	Label  string         `json:"label,omitempty"`
	Values map[string]any `json:"values,omitempty"`
}

// ndjsonResponse is one line of output. Exactly one of Fragments or Error
// is set.
type ndjsonResponse struct {
	Document  string              `json:"document"`
	Fragments domain.RenderTree   `json:"fragments,omitempty"`
	Target    string              `json:"target,omitempty"`
	Error     string              `json:"error,omitempty"`
	Fields    []domain.FieldError `json:"fields,omitempty"`
}

// runNDJSON reads one JSON request per stdin line and writes one JSON
// response per line, for driving a session from another process.
func runNDJSON(ctx context.Context, eng *stanza.Engine, docID string) error {
	out := json.NewEncoder(os.Stdout)
	scanner := bufio.NewScanner(os.Stdin)

	emit := func(tree domain.RenderTree, target string, err error) error {
		resp := ndjsonResponse{Document: docID}
		if err != nil {
			resp.Error = err.Error()
			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				resp.Fields = verr.Fields
			}
		} else {
			resp.Fragments = tree
			resp.Target = target
		}
		return out.Encode(resp)
	}

	tree, err := eng.Render(ctx, docID)
	if err := emit(tree, "", err); err != nil {
		return err
	}

	for scanner.Scan() {
		var req ndjsonRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			if err := emit(nil, "", fmt.Errorf("bad request: %w", err)); err != nil {
				return err
			}
			continue
		}

		var tree domain.RenderTree
		var target string
		var err error
		switch req.Action {
		case "render":
			tree, err = eng.Render(ctx, docID)
		case "submit":
			tree, err = eng.Submit(ctx, docID, req.Block, req.Values)
		case "choose":
			tree, target, err = eng.Choose(ctx, docID, req.Block, req.Label)
		case "exit":
			return nil
		default:
			err = fmt.Errorf("unknown action %q", req.Action)
		}
		if err := emit(tree, target, err); err != nil {
			return err
		}
	}
	return scanner.Err()
}
