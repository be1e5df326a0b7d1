package download

// Package download implements the task manager core: the task store, the
// lifecycle engine that streams bytes from a Fetcher into destination files,
// the observer hub that fans snapshots out to subscribers, and the persister
// that mirrors snapshots into a Gateway. All mutation goes through Service.
