// Package app wires the pieces into a runnable application: it configures
// the logger, opens or synthesizes the dataset, registers the core filter
// modules on a workspace, and drives one action file to completion.
package app
