package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/voidKandy/espionox-sub001/internal/dispatch"
	"github.com/voidKandy/espionox-sub001/pkg/app"
)

// ask dispatches prompt to the named agent and writes deltas to out as
// they arrive. An empty name selects the first configured agent.
func ask(ctx context.Context, rt *app.Runtime, name, prompt string, out io.Writer) error {
	if name == "" {
		names := rt.Agents.Names()
		if len(names) == 0 {
			return errors.New("no agents configured")
		}
		name = names[0]
	}
	a, err := rt.Agents.Get(name)
	if err != nil {
		return err
	}

	var writeErr error
	res, err := rt.Dispatcher.Dispatch(ctx, a, prompt, dispatch.OnDelta(func(delta string) {
		if writeErr == nil {
			_, writeErr = io.WriteString(out, delta)
		}
	}))
	if err != nil {
		return err
	}
	if writeErr != nil {
		return writeErr
	}
	fmt.Fprintln(out)
	for _, f := range res.ObserverErrors {
		rt.Logger.Warn("observer failed", "observer", f.Observer, "error", f.Err)
	}
	return nil
}

func listThreads(ctx context.Context, rt *app.Runtime, storeID string, out io.Writer) error {
	store, err := rt.Store(storeID)
	if err != nil {
		return fmt.Errorf("store %q is not configured: %w", storeID, err)
	}
	threads, err := store.Threads(ctx)
	if err != nil {
		return err
	}
	for _, t := range threads {
		fmt.Fprintln(out, t)
	}
	return nil
}

func printCheck(rt *app.Runtime, out io.Writer) error {
	ids := rt.App.ModuleIDs()
	fmt.Fprintf(out, "Configuration OK (%d modules, %d agents)\n", len(ids), rt.Agents.Len())
	for _, id := range ids {
		fmt.Fprintf(out, "  module %s\n", id)
	}
	for _, name := range rt.Agents.Names() {
		fmt.Fprintf(out, "  agent  %s\n", name)
	}
	return nil
}
