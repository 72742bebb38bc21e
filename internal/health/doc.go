// Package health computes per-client account health: reporting windows,
// weekly target parsing, name resolution between clients and campaign
// labels, per-window rollups, prorated volume targets, and the Red/Yellow/Green
// verdict with its reason. Everything here is a pure function of its inputs.
package health
