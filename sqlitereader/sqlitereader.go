// Copyright 2020 Michael J. Fromberger. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlitereader opens possibly-locked SQLite cookie databases
// read-only: it first tries an immutable, lock-free open, and falls back to
// copying the database (and its -wal/-shm siblings) to a temporary
// directory when the browser holds the original open exclusively.
package sqlitereader

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/corvidae/cookiejar/cookieserr"
)

// Handle is an open SQLite connection plus the cleanup needed to release
// any temporary copy made to work around a lock.
type Handle struct {
	DB *sql.DB

	tmpDir string
}

// Close closes the database connection and removes any temporary copy.
func (h *Handle) Close() error {
	err := h.DB.Close()
	if h.tmpDir != "" {
		if rmErr := os.RemoveAll(h.tmpDir); err == nil {
			err = rmErr
		}
	}
	return err
}

// Open opens the SQLite database at path read-only. If the browser holds
// the file locked, Open copies path and its -wal/-shm siblings into a
// fresh temporary directory and reopens there; the copy is removed when
// the returned Handle is closed. This is the only retry performed; there
// is no polling.
func Open(path string) (*Handle, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", cookieserr.ErrDBNotFound, path)
	}

	db, err := openImmutable(path)
	if err == nil {
		if pingErr := db.Ping(); pingErr == nil {
			return &Handle{DB: db}, nil
		}
		db.Close()
	}

	tmpDir, copyPath, err := copyDatabase(path)
	if err != nil {
		return nil, fmt.Errorf("%w: copying %s: %v", cookieserr.ErrDBLockedAfterCopy, path, err)
	}
	db, err = openImmutable(copyPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("%w: reopening copy of %s: %v", cookieserr.ErrDBLockedAfterCopy, path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("%w: %s", cookieserr.ErrDBLockedAfterCopy, path)
	}
	return &Handle{DB: db, tmpDir: tmpDir}, nil
}

func openImmutable(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&immutable=1", path)
	return sql.Open("sqlite", dsn)
}

// copyDatabase copies path and any -wal/-shm sibling files into a new
// temporary directory, preserving the base filename so relative WAL/SHM
// lookups by the SQLite library still resolve.
func copyDatabase(path string) (tmpDir, copyPath string, err error) {
	tmpDir, err = os.MkdirTemp("", "sqlitereader-*")
	if err != nil {
		return "", "", err
	}

	base := filepath.Base(path)
	copyPath = filepath.Join(tmpDir, base)
	if err := copyFile(path, copyPath); err != nil {
		os.RemoveAll(tmpDir)
		return "", "", err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		src := path + suffix
		if _, statErr := os.Stat(src); statErr != nil {
			continue
		}
		if err := copyFile(src, copyPath+suffix); err != nil {
			os.RemoveAll(tmpDir)
			return "", "", err
		}
	}
	return tmpDir, copyPath, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
