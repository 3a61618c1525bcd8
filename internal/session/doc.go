// Package session keeps one shared trip document in sync between a local working copy
// and a remote store.
//
// # Overview
//
// A Session loads the document once, then runs two independent loops:
//
//   - Save: every edit marks the document dirty and restarts a short debounce
//     (350ms by default). When it expires the whole document is normalized and written
//     with the last known version token. Only one write is ever in flight.
//   - Poll: every PollInterval (10s by default), plus once shortly after start, the
//     remote copy is read and, if it is newer and there are no local edits, replaces the
//     working copy. Listeners are told to re-render.
//
// # Conflicts
//
// Conflict resolution is last-writer-wins at document granularity. With a
// compare-and-swap store a stale write fails with store.ErrVersionConflict; the session
// reads the remote version once and writes again over it. A second conflict in a row is
// reported as a save error. With a registry store writes never conflict, and two
// concurrent writers are only ordered by their stamps at the next poll.
//
// # Status
//
// Every state change is reported to listeners as a Status; Status.Text gives the line
// a UI shows. Errors never stop the session: a failed initial load falls back to the
// default document, failed polls and saves only change the status.
//
// # Example
//
//	sess, err := session.New(st, fixed)
//	if err != nil {
//	    return err
//	}
//	sess.AddListener(session.ListenerFuncs{Status: func(s session.Status) {
//	    fmt.Println(s.Text())
//	}})
//	if err := sess.Start(ctx); err != nil {
//	    log.Printf("starting on defaults: %v", err)
//	}
//	defer sess.Close(context.Background())
//
//	_ = sess.SetField("meta.currency", "EUR")
package session
