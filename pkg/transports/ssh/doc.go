// Package ssh executes commands and stages files on remote hosts for
// command sets that declare a remote target.
package ssh
