// Package ftp manages FTP accounts, which are plain host users with a
// non-interactive shell.
//
// Account creation is a sequenced plan: useradd, then chpasswd (password
// over stdin), then best-effort home directory preparation. When the
// password cannot be set the new user is deleted again, so a half-created
// account is never left behind.
package ftp
