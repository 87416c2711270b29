// Package manager keeps a running policy engine in sync with its TOML policy
// file.
//
// Manager.Reload loads the file, validates it, optionally rejects conflicting
// rules, and swaps the new approval mode and rules into the engine with
// Engine.UpdateFrom. Evaluations in flight keep the snapshot they started
// with. A failed reload leaves the current rules in place.
//
// Manager.Watch uses a FileWatcher (fsnotify on the file's directory) and a
// Debouncer so that a burst of writes, or an editor's save-by-rename,
// triggers a single reload.
//
// # Usage
//
//	eng, err := engine.NewFromFile("policy.toml")
//	if err != nil {
//	    return err
//	}
//	mgr, err := manager.New(eng, manager.Config{
//	    Path:  "policy.toml",
//	    Watch: true,
//	}, manager.WithReloadCallback(func(ev manager.ReloadEvent) {
//	    collector.RecordReload(ev.Err)
//	}))
//	if err != nil {
//	    return err
//	}
//	go mgr.Watch(ctx)
package manager
