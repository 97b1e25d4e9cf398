package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/aretw0/stanza/internal/expr"
	"github.com/aretw0/stanza/internal/path"
	"github.com/aretw0/stanza/internal/sched"
	"github.com/aretw0/stanza/internal/state"
	"github.com/aretw0/stanza/pkg/domain"
)

// execBlocks runs one nesting level from index start. It returns true when a
// WAIT suspended the pass; the caller stops rendering anything after it.
// Runtime errors do not stop the pass: they become inline diagnostics and
// execution continues with the last good state.
func (r *Runner) execBlocks(ctx context.Context, blocks []domain.Block, start int, prefix []cursorStep, tree *domain.RenderTree) (bool, error) {
	for i := start; i < len(blocks); i++ {
		block := blocks[i]
		r.enterBlock(ctx, block)

		var suspended bool
		var err error
		switch block.Kind {
		case domain.BlockProse:
			*tree = append(*tree, domain.Fragment{Type: domain.FragmentProse, BlockID: block.ID, Content: block.Prose})
		case domain.BlockState:
			err = r.execState(block)
		case domain.BlockSet:
			err = r.applyMutation(block.Set.Mutation)
		case domain.BlockForm:
			*tree = append(*tree, domain.Fragment{
				Type:    domain.FragmentForm,
				BlockID: block.ID,
				Content: domain.FormView{Title: block.Form.Title, Fields: block.Form.Fields},
			})
		case domain.BlockIf:
			suspended, err = r.execIf(ctx, block, i, prefix, tree)
		case domain.BlockNav:
			r.execNav(block, tree)
		case domain.BlockPanel:
			r.execPanel(block, tree)
		case domain.BlockMap:
			var view domain.MapView
			view, err = r.renderMap(block)
			if err == nil {
				*tree = append(*tree, domain.Fragment{Type: domain.FragmentMap, BlockID: block.ID, Content: view})
			}
		case domain.BlockWait:
			suspended, err = r.execWait(ctx, block, i, prefix)
		}

		if err != nil {
			r.diagnose(tree, block.ID, err)
		}
		r.leaveBlock(ctx, block)
		if suspended {
			return true, nil
		}
	}
	return false, nil
}

// resumeAt descends along the cursor to the suspended WAIT, then continues
// with the block after it at every level on the way back out.
func (r *Runner) resumeAt(ctx context.Context, blocks []domain.Block, cursor []cursorStep, prefix []cursorStep, tree *domain.RenderTree) (bool, error) {
	step := cursor[0]
	if step.Block < 0 || step.Block >= len(blocks) {
		return false, fmt.Errorf("resume cursor out of range: block %d of %d", step.Block, len(blocks))
	}

	if len(cursor) > 1 {
		block := blocks[step.Block]
		if block.If == nil {
			return false, fmt.Errorf("resume cursor descends into non-branch block %q", block.ID)
		}
		body := branchBody(block.If, step.Branch)
		suspended, err := r.resumeAt(ctx, body, cursor[1:], append(prefix, step), tree)
		if err != nil || suspended {
			return suspended, err
		}
	}
	return r.execBlocks(ctx, blocks, step.Block+1, prefix, tree)
}

func (r *Runner) execState(block domain.Block) error {
	if r.declared[block.ID] {
		return nil
	}
	err := r.store.Declare(block.State.Name, domain.Clone(block.State.Value), state.OwnerUser)
	var dup *domain.DuplicateVariableError
	if errors.As(err, &dup) {
		// Already initialized by an earlier pass or a restored snapshot.
		r.declared[block.ID] = true
		return nil
	}
	if err != nil {
		return err
	}
	r.declared[block.ID] = true
	return nil
}

// applyMutation resolves the operand and applies one SET-style operation.
func (r *Runner) applyMutation(mut domain.Mutation) error {
	target, err := path.Parse(mut.Target)
	if err != nil {
		return &domain.AssignmentTargetError{Target: mut.Target, Reason: err.Error()}
	}

	var operand domain.Value = domain.Null{}
	if mut.Value.Path != "" {
		operand = r.store.ResolveString(mut.Value.Path)
	} else if mut.Value.Literal != nil {
		operand = domain.Clone(mut.Value.Literal)
	}

	switch mut.Op {
	case domain.OpAssign:
		return r.store.SetPath(target, operand)

	case domain.OpAdd, domain.OpSub:
		current := r.store.Resolve(target)
		next, err := arith(mut.Op, current, operand)
		if err != nil {
			return &domain.TypeMismatchError{Target: mut.Target, Want: kindOf(current), Got: kindOf(operand)}
		}
		return r.store.SetPath(target, next)

	case domain.OpPush:
		current := r.store.Resolve(target)
		arr, ok := current.(domain.Array)
		if !ok {
			return &domain.TypeMismatchError{Target: mut.Target, Want: domain.KindArray, Got: kindOf(current)}
		}
		next := make(domain.Array, len(arr), len(arr)+1)
		copy(next, arr)
		next = append(next, operand)
		return r.store.SetPath(target, next)

	case domain.OpPop:
		current := r.store.Resolve(target)
		arr, ok := current.(domain.Array)
		if !ok {
			return &domain.TypeMismatchError{Target: mut.Target, Want: domain.KindArray, Got: kindOf(current)}
		}
		if len(arr) == 0 {
			return &domain.AssignmentTargetError{Target: mut.Target, Reason: "cannot pop from an empty array"}
		}
		next := make(domain.Array, len(arr)-1)
		copy(next, arr[:len(arr)-1])
		return r.store.SetPath(target, next)
	}
	return &domain.AssignmentTargetError{Target: mut.Target, Reason: fmt.Sprintf("unknown operator %q", mut.Op)}
}

func arith(op domain.SetOp, current, operand domain.Value) (domain.Value, error) {
	if ln, ok := current.(domain.Number); ok {
		rn, ok := operand.(domain.Number)
		if !ok {
			return nil, fmt.Errorf("number expected")
		}
		if op == domain.OpSub {
			return ln - rn, nil
		}
		return ln + rn, nil
	}
	if ls, ok := current.(domain.String); ok && op == domain.OpAdd {
		rs, ok := operand.(domain.String)
		if !ok {
			return nil, fmt.Errorf("string expected")
		}
		return ls + rs, nil
	}
	return nil, fmt.Errorf("operand kinds do not support %s", op)
}

func (r *Runner) execIf(ctx context.Context, block domain.Block, index int, prefix []cursorStep, tree *domain.RenderTree) (bool, error) {
	for b, branch := range block.If.Branches {
		compiled, err := expr.Compile(branch.Cond)
		if err != nil {
			return false, &domain.AuthoringError{BlockID: block.ID, Reason: err.Error()}
		}
		if compiled.Eval(r.store) {
			return r.execBlocks(ctx, branch.Body, 0, append(prefix, cursorStep{Block: index, Branch: b}), tree)
		}
	}
	if len(block.If.Else) > 0 {
		return r.execBlocks(ctx, block.If.Else, 0, append(prefix, cursorStep{Block: index, Branch: -1}), tree)
	}
	return false, nil
}

// execNav exposes only the choices whose guards pass against current state.
func (r *Runner) execNav(block domain.Block, tree *domain.RenderTree) {
	view := domain.NavView{Choices: make([]domain.NavOption, 0, len(block.Nav.Choices))}
	for _, choice := range block.Nav.Choices {
		if !r.guardPasses(choice.Guard) {
			continue
		}
		view.Choices = append(view.Choices, domain.NavOption{Label: choice.Label, Target: choice.Target})
	}
	*tree = append(*tree, domain.Fragment{Type: domain.FragmentNav, BlockID: block.ID, Content: view})
}

func (r *Runner) guardPasses(guard string) bool {
	if guard == "" {
		return true
	}
	compiled, err := expr.Compile(guard)
	if err != nil {
		return false
	}
	return compiled.Eval(r.store)
}

func (r *Runner) execPanel(block domain.Block, tree *domain.RenderTree) {
	view := domain.PanelView{Title: block.Panel.Title, Rows: make([]domain.PanelRow, 0, len(block.Panel.Items))}
	for _, item := range block.Panel.Items {
		view.Rows = append(view.Rows, domain.PanelRow{
			Label: item.Label,
			Value: domain.Display(r.store.ResolveString(item.Path)),
		})
	}
	*tree = append(*tree, domain.Fragment{Type: domain.FragmentPanel, BlockID: block.ID, Content: view})
}

// renderMap clips the tile grid to a viewport centered on the position
// variable. Tiles outside the viewport are dropped; the position itself is
// marked with '@'.
func (r *Runner) renderMap(block domain.Block) (domain.MapView, error) {
	mb := block.Map

	pos, ok := r.store.ResolveString(mb.Position).(*domain.Object)
	if !ok {
		return domain.MapView{}, fmt.Errorf("map position %q is not an object", mb.Position)
	}
	px, okX := numField(pos, "x")
	py, okY := numField(pos, "y")
	if !okX || !okY {
		return domain.MapView{}, fmt.Errorf("map position %q needs numeric x and y", mb.Position)
	}

	tiles, ok := r.store.ResolveString(mb.TileSource).(domain.Array)
	if !ok {
		return domain.MapView{}, fmt.Errorf("map tile source %q is not an array", mb.TileSource)
	}

	left := px - mb.Width/2
	top := py - mb.Height/2

	grid := make([][]rune, mb.Height)
	for y := range grid {
		grid[y] = make([]rune, mb.Width)
		for x := range grid[y] {
			grid[y][x] = ' '
		}
	}

	for _, tile := range tiles {
		obj, ok := tile.(*domain.Object)
		if !ok {
			continue
		}
		tx, okX := numField(obj, "x")
		ty, okY := numField(obj, "y")
		if !okX || !okY {
			continue
		}
		gx, gy := tx-left, ty-top
		if gx < 0 || gx >= mb.Width || gy < 0 || gy >= mb.Height {
			continue
		}
		glyph := '?'
		if raw, ok := obj.Get("tile"); ok {
			if s, ok := raw.(domain.String); ok && s != "" {
				glyph = []rune(string(s))[0]
			}
		}
		grid[gy][gx] = glyph
	}
	grid[py-top][px-left] = '@'

	rows := make([]string, mb.Height)
	var sb strings.Builder
	for y, line := range grid {
		sb.Reset()
		for _, c := range line {
			sb.WriteRune(c)
		}
		rows[y] = sb.String()
	}
	return domain.MapView{Title: mb.Title, Width: mb.Width, Height: mb.Height, Rows: rows}, nil
}

func numField(o *domain.Object, key string) (int, bool) {
	raw, ok := o.Get(key)
	if !ok {
		return 0, false
	}
	n, ok := raw.(domain.Number)
	if !ok {
		return 0, false
	}
	return int(n), true
}

// execWait snapshots the environment, persists the continuation, and
// suspends the pass. The scheduler owns the wakeup from here. One WAIT block
// schedules at most one wakeup per session: while it is pending, re-renders
// suspend at the same block without a new item, and once it has fired the
// pass flows straight through.
func (r *Runner) execWait(ctx context.Context, block domain.Block, index int, prefix []cursorStep) (bool, error) {
	if r.waitDone[block.ID] {
		return false, nil
	}
	if r.waitPending[block.ID] {
		return true, nil
	}
	if r.waiter == nil {
		return true, fmt.Errorf("wait block has no scheduler attached")
	}

	fireAt, err := sched.FireAt(block.Wait.Duration, block.Wait.Until, r.clock())
	if err != nil {
		return false, &domain.AuthoringError{BlockID: block.ID, Reason: err.Error()}
	}

	stateSnap, err := r.store.Snapshot()
	if err != nil {
		return true, err
	}
	cursor := make([]cursorStep, 0, len(prefix)+1)
	cursor = append(cursor, prefix...)
	cursor = append(cursor, cursorStep{Block: index, Branch: -1})
	snapshot, err := encodeContinuation(stateSnap, cursor)
	if err != nil {
		return true, err
	}

	item := domain.ScheduledExecution{
		ID:          uuid.NewString(),
		DocumentID:  r.doc.ID,
		BlockID:     block.ID,
		FireAtEpoch: fireAt.Unix(),
		Snapshot:    snapshot,
	}
	if err := r.waiter.Schedule(ctx, item); err != nil {
		return true, err
	}
	r.waitPending[block.ID] = true

	if r.hooks.OnWaitScheduled != nil {
		r.hooks.OnWaitScheduled(ctx, &domain.WaitEvent{
			EventBase: domain.EventBase{
				Timestamp:  r.clock(),
				Type:       domain.EventWaitScheduled,
				DocumentID: r.doc.ID,
			},
			BlockID:     block.ID,
			FireAtEpoch: item.FireAtEpoch,
		})
	}
	return true, nil
}

func (r *Runner) diagnose(tree *domain.RenderTree, blockID string, err error) {
	r.logger.Warn("block error", "document", r.doc.ID, "block", blockID, "err", err)
	*tree = append(*tree, domain.Fragment{
		Type:    domain.FragmentDiagnostic,
		BlockID: blockID,
		Content: domain.Diagnostic{BlockID: blockID, Message: err.Error()},
	})
}

func (r *Runner) enterBlock(ctx context.Context, block domain.Block) {
	if r.hooks.OnBlockEnter == nil {
		return
	}
	r.hooks.OnBlockEnter(ctx, &domain.BlockEvent{
		EventBase: domain.EventBase{Timestamp: r.clock(), Type: domain.EventBlockEnter, DocumentID: r.doc.ID},
		BlockID:   block.ID,
		BlockKind: block.Kind,
	})
}

func (r *Runner) leaveBlock(ctx context.Context, block domain.Block) {
	if r.hooks.OnBlockLeave == nil {
		return
	}
	r.hooks.OnBlockLeave(ctx, &domain.BlockEvent{
		EventBase: domain.EventBase{Timestamp: r.clock(), Type: domain.EventBlockLeave, DocumentID: r.doc.ID},
		BlockID:   block.ID,
		BlockKind: block.Kind,
	})
}

func kindOf(v domain.Value) domain.Kind {
	if v == nil {
		return domain.KindNull
	}
	return v.Kind()
}
