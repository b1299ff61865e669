// Package errdefs defines the error taxonomy shared by every Dockfleet
// component and the translation from Docker SDK errors into it. The
// taxonomy follows the moby/containerd errdefs pattern: kind predicates
// instead of concrete type assertions at call sites.
package errdefs
