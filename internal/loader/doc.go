// Package loader implements fetch-or-reuse for animation clips. A Loader
// answers from the persistent cache when it can and otherwise downloads the
// clip, returning it to the caller before persisting it on a best-effort
// basis.
package loader
