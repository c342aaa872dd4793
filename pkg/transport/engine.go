/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package transport abstracts where sample blobs, model snapshots and bin
// tables live: a local directory during development, or an S3 bucket in
// production. It mirrors the teacher's PersistenceEngine split between a
// local filesystem backend and an S3 backend, narrowed from arbitrary
// column storage down to the handful of named blobs sparrow moves around.
package transport

import "io"

// Engine is the storage abstraction every head and scanner talks to. Blob
// names are logical keys ("model.json", "samples/sample-0000000042.bin") the engine is
// free to map onto paths or object keys however it likes.
type Engine interface {
	// WriteBlob stores data under name, replacing any previous contents.
	WriteBlob(name string, data []byte) error
	// ReadBlob returns the current contents of name.
	ReadBlob(name string) ([]byte, error)
	// RemoveBlob deletes name. Removing a blob that does not exist is not
	// an error.
	RemoveBlob(name string) error
	// List returns every blob name with the given prefix.
	List(prefix string) ([]string, error)
}

// ErrorReader is an io.ReadCloser that always returns err, used to carry a
// lookup failure through APIs that expect a reader rather than an error.
// Grounded directly on the teacher's storage.ErrorReader.
type ErrorReader struct {
	Err error
}

func (e ErrorReader) Read([]byte) (int, error) { return 0, e.Err }
func (e ErrorReader) Close() error             { return nil }

var _ io.ReadCloser = ErrorReader{}
