package model

// Package model defines domain data structures used across the service: download
// tasks, media references, renditions, playlists and the task status enum with its
// transition table. Structures are plain values so snapshots can be copied freely.
