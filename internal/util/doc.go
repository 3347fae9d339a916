// Package util provides small helpers shared by the server, storage and
// boundary packages.
package util
