// Package testsupport holds fixtures shared by package tests: a temp-dir
// backed config builder, history store helpers, and file writers.
package testsupport
