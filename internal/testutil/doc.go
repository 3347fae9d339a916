// Package testutil provides fixtures, a controllable clock and store seeding
// helpers shared by the package tests.
package testutil
