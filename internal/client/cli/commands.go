package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/ledgersync/internal/client/models"
	"github.com/dmitrijs2005/ledgersync/internal/client/syncer"
	"github.com/dmitrijs2005/ledgersync/internal/common"
	"github.com/dmitrijs2005/ledgersync/internal/shared"
)

// Add creates a row: add <type> [name=value ...]. Without inline fields
// they are read interactively.
func (a *App) Add(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return usageError("add <type> [name=value ...]")
	}
	t, err := models.ParseEntityType(args[0])
	if err != nil {
		return err
	}
	fields, err := a.fieldsFrom(t, args[1:])
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return usageError("add <type> [name=value ...]")
	}
	if err := models.ValidateNew(t, fields); err != nil {
		return err
	}

	id, err := a.store.Write(ctx, t, "", fields, true)
	if err != nil {
		return err
	}
	a.println("created", t, id)
	return nil
}

// Update patches an existing row: update <type> <id> name=value ...
// A null value removes the field.
func (a *App) Update(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usageError("update <type> <id> [name=value ...]")
	}
	t, err := models.ParseEntityType(args[0])
	if err != nil {
		return err
	}
	id := args[1]
	if _, err := a.store.Get(ctx, t, id, false); err != nil {
		return err
	}
	patch, err := a.fieldsFrom(t, args[2:])
	if err != nil {
		return err
	}
	if len(patch) == 0 {
		return usageError("update <type> <id> [name=value ...]")
	}

	if _, err := a.store.Write(ctx, t, id, patch, true); err != nil {
		return err
	}
	a.println("updated", t, id)
	return nil
}

// fieldsFrom parses pairs, or prompts for them when none were given, and
// rejects values whose type does not fit the record of kind t.
func (a *App) fieldsFrom(t models.EntityType, pairs []string) (models.Fields, error) {
	if len(pairs) == 0 {
		lines, err := GetFieldLines(a.reader, a.out)
		if err != nil {
			return nil, err
		}
		pairs = lines
	}
	fields, err := ParseFields(pairs)
	if err != nil {
		return nil, err
	}
	if _, err := models.Decode(t, fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// Delete soft-deletes a row: delete <type> <id>.
func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("delete <type> <id>")
	}
	t, err := models.ParseEntityType(args[0])
	if err != nil {
		return err
	}
	if err := a.store.SoftDelete(ctx, t, args[1]); err != nil {
		return err
	}
	a.println("deleted", t, args[1])
	return nil
}

// List prints the rows of one kind: list <type> [all]. With "all"
// tombstones awaiting sync are shown too. "list dirty" prints every
// unsynced row of any kind.
func (a *App) List(ctx context.Context, args []string) error {
	if len(args) == 1 && args[0] == "dirty" {
		return a.listDirty(ctx)
	}
	if len(args) < 1 || len(args) > 2 || (len(args) == 2 && args[1] != "all") {
		return usageError("list <type> [all] | list dirty")
	}
	t, err := models.ParseEntityType(args[0])
	if err != nil {
		return err
	}
	rows, err := a.store.List(ctx, t, len(args) == 2)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		a.println("no", t, "rows")
		return nil
	}
	for i := range rows {
		a.println(formatRow(&rows[i]))
	}
	return nil
}

func (a *App) listDirty(ctx context.Context) error {
	rows, err := a.store.ListDirty(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		a.println("no unsynced rows")
		return nil
	}
	for i := range rows {
		a.println(fmt.Sprintf("%-11s  %s", rows[i].Type, formatRow(&rows[i])))
	}
	return nil
}

func syncState(r *models.Row) string {
	switch {
	case r.Deleted():
		return "deleted"
	case r.Synced:
		return "synced"
	default:
		return "dirty"
	}
}

func formatRow(r *models.Row) string {
	return fmt.Sprintf("%s  %-7s  %s", r.ID, syncState(r), fieldsJSON(r.Fields))
}

func fieldsJSON(f models.Fields) string {
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(f))
	}
	return string(b)
}

// Show prints one row with its sync metadata: show <type> <id>.
func (a *App) Show(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("show <type> <id>")
	}
	t, err := models.ParseEntityType(args[0])
	if err != nil {
		return err
	}
	r, err := a.store.Get(ctx, t, args[1], true)
	if err != nil {
		return err
	}

	a.println("id:            ", r.ID)
	a.println("type:          ", r.Type)
	a.println("state:         ", syncState(r))
	a.println("local version: ", r.LocalVersion)
	a.println("server version:", r.ServerVersion)
	a.println("updated:       ", formatUnix(r.UpdatedAt))
	if r.LastSyncedAt != nil {
		a.println("last synced:   ", formatUnix(*r.LastSyncedAt))
	}
	a.println("fields:        ", fieldsJSON(r.Fields))
	return nil
}

func formatUnix(sec int64) string {
	return time.Unix(sec, 0).Format(time.RFC3339)
}

// Sync runs a cycle now: sync [force].
func (a *App) Sync(ctx context.Context, args []string) error {
	force := false
	switch {
	case len(args) == 1 && args[0] == "force":
		force = true
	case len(args) > 0:
		return usageError("sync [force]")
	}

	err := a.engine.Sync(ctx, force)
	if errors.Is(err, syncer.ErrOffline) {
		a.println("offline: changes stay queued until the server is reachable")
		return nil
	}
	if err != nil {
		return err
	}
	return a.Status(ctx)
}

// Status prints the connectivity mode and the last cycle's progress.
func (a *App) Status(ctx context.Context) error {
	p := a.engine.Progress()
	a.println("mode:    ", a.getStatus(ctx))
	a.println("sync:    ", p.Status)
	if p.TotalItems > 0 {
		a.println("pushed:  ", fmt.Sprintf("%d/%d (failed %d, skipped %d, dead %d)",
			p.SyncedItems, p.TotalItems, p.FailedItems, p.SkippedItems, p.DeadItems))
	}
	if !p.LastSync.IsZero() {
		a.println("last:    ", p.LastSync.Format(time.RFC3339))
	}
	if p.LastError != "" {
		a.println("error:   ", p.LastError)
	}
	return nil
}

// Pending lists outbox entries not yet confirmed by the server.
func (a *App) Pending(ctx context.Context) error {
	entries, err := a.store.Outbox().Outstanding(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		a.println("nothing pending")
		return nil
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-6s %s/%s  %s  attempts=%d", e.ID, e.Operation, e.EntityType, e.EntityID, e.Status, e.Attempts)
		if e.LastError != "" {
			line += "  error=" + e.LastError
		}
		a.println(line)
	}
	return nil
}

// Requeue moves dead entries back to pending: requeue <entry-id>|all.
func (a *App) Requeue(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("requeue <entry-id>|all")
	}
	ob := a.store.Outbox()

	if args[0] != "all" {
		if err := ob.Requeue(ctx, args[0]); err != nil {
			return err
		}
		a.println("requeued", args[0])
		return nil
	}

	entries, err := ob.Outstanding(ctx)
	if err != nil {
		return err
	}
	n := 0
	for _, e := range entries {
		if e.Status != models.StatusDead {
			continue
		}
		if err := ob.Requeue(ctx, e.ID); err != nil {
			return err
		}
		n++
	}
	a.println("requeued", n, "entries")
	return nil
}

// Policy shows or switches the conflict policy: policy [name].
func (a *App) Policy(ctx context.Context, args []string) error {
	switch len(args) {
	case 0:
		a.println("conflict policy:", a.policy)
		return nil
	case 1:
	default:
		return usageError("policy [server-wins|client-wins|merge]")
	}

	p, err := syncer.ParsePolicy(args[0])
	if err != nil {
		return err
	}
	r, err := resolverFor(p)
	if err != nil {
		return err
	}
	a.engine.SetResolver(r)
	a.policy = p
	a.println("conflict policy:", p)
	return nil
}

// Login reads an access token without echo and probes the server with it.
func (a *App) Login(ctx context.Context) error {
	raw, err := GetSecret("Access token", a.out)
	if err != nil {
		return err
	}
	defer shared.WipeByteArray(raw)

	token := bytes.TrimSpace(raw)
	if len(token) == 0 {
		return fmt.Errorf("%w: empty token", common.ErrInvalidToken)
	}
	a.remote.SetAccessToken(string(token))

	if a.monitor.Check(ctx) {
		a.println("logged in, server reachable")
	} else {
		a.println("token saved, server unreachable")
	}
	if a.config.SyncInterval > 0 {
		a.engine.StartAutoSync(ctx, a.config.SyncInterval)
	}
	return nil
}

// Logout forgets the token and wipes every local row, the outbox and
// sync metadata. Unsynced changes are lost.
func (a *App) Logout(ctx context.Context) error {
	// no cycle may write cursors or outbox state after the wipe
	resume, err := a.engine.Stop(ctx)
	if err != nil {
		return err
	}
	defer resume()

	a.remote.SetAccessToken("")
	if err := a.store.Clear(ctx); err != nil {
		return err
	}
	a.println("logged out, local data cleared")
	return nil
}
