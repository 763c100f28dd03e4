// Package loop runs instructions against a board with a draft, render,
// review cycle. A run drafts changes off the committed state, lets the model
// inspect snapshots of its own work for a bounded number of passes, and
// commits the final draft in one replace. Failed runs leave the committed
// state untouched.
package loop
