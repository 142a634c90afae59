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

package sqlitereader

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func makeTestDB(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(`CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`); err != nil {
		t.Fatalf("CREATE TABLE failed: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO widgets (name) VALUES ('sprocket')`); err != nil {
		t.Fatalf("INSERT failed: %v", err)
	}
}

func TestOpenReadsExistingDatabase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widgets.db")
	makeTestDB(t, path)

	h, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer h.Close()

	var name string
	if err := h.DB.QueryRow(`SELECT name FROM widgets WHERE id = 1`).Scan(&name); err != nil {
		t.Fatalf("QueryRow failed: %v", err)
	}
	if name != "sprocket" {
		t.Errorf("name = %q, want %q", name, "sprocket")
	}
}

func TestOpenMissingFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(filepath.Join(dir, "missing.db")); err == nil {
		t.Error("Open succeeded for a nonexistent file")
	}
}

func TestCopyDatabaseIncludesWalAndShmSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Cookies")
	if err := os.WriteFile(path, []byte("main db bytes"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := os.WriteFile(path+"-wal", []byte("wal bytes"), 0o600); err != nil {
		t.Fatalf("WriteFile -wal failed: %v", err)
	}
	if err := os.WriteFile(path+"-shm", []byte("shm bytes"), 0o600); err != nil {
		t.Fatalf("WriteFile -shm failed: %v", err)
	}

	tmpDir, copyPath, err := copyDatabase(path)
	if err != nil {
		t.Fatalf("copyDatabase failed: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	for _, suffix := range []string{"", "-wal", "-shm"} {
		data, err := os.ReadFile(copyPath + suffix)
		if err != nil {
			t.Fatalf("reading copy%s: %v", suffix, err)
		}
		if len(data) == 0 {
			t.Errorf("copy%s is empty", suffix)
		}
	}
}

func TestHandleCloseRemovesTempDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widgets.db")
	makeTestDB(t, path)

	tmpDir, copyPath, err := copyDatabase(path)
	if err != nil {
		t.Fatalf("copyDatabase failed: %v", err)
	}
	db, err := openImmutable(copyPath)
	if err != nil {
		t.Fatalf("openImmutable failed: %v", err)
	}
	h := &Handle{DB: db, tmpDir: tmpDir}

	if err := h.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Stat(tmpDir); !os.IsNotExist(err) {
		t.Errorf("tmpDir %q still exists after Close", tmpDir)
	}
}
