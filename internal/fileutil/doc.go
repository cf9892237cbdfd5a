// Package fileutil holds the file replacement helpers shared by the dataset
// writer and the version image cache.
package fileutil
