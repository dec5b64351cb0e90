// Copyright 2016 The Daap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rkapsi/daap/errors"
	"github.com/rkapsi/daap/library"
	"github.com/rkapsi/daap/log"
)

// audioFormats maps file extensions to the format token served in
// daap.songformat.
var audioFormats = map[string]string{
	".mp3":  "mp3",
	".m4a":  "m4a",
	".aac":  "aac",
	".wav":  "wav",
	".ogg":  "ogg",
	".flac": "flac",
}

// fileSource streams songs straight from the files they were scanned
// from. It implements daap.StreamSource.
type fileSource struct {
	mu    sync.RWMutex
	paths map[uint32]string
}

func newFileSource() *fileSource {
	return &fileSource{paths: make(map[uint32]string)}
}

func (fs *fileSource) add(id uint32, path string) {
	fs.mu.Lock()
	fs.paths[id] = path
	fs.mu.Unlock()
}

func (fs *fileSource) Open(id uint32) (io.ReadSeeker, int64, error) {
	const op = "daapd.Open"
	fs.mu.RLock()
	path, ok := fs.paths[id]
	fs.mu.RUnlock()
	if !ok {
		return nil, 0, errors.E(op, errors.NotExist, errors.Errorf("song %d has no file", id))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.E(op, errors.IO, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, errors.E(op, errors.IO, err)
	}
	return f, info.Size(), nil
}

// scan walks dir and fills the library's database with one song per
// audio file, in one transaction. Unreadable entries are logged and
// skipped.
func scan(lib *library.Library, dir string, source *fileSource) error {
	const op = "daapd.scan"

	tx, err := lib.Open()
	if err != nil {
		return errors.E(op, err)
	}
	db := lib.Head().Database()

	type entry struct {
		song *library.Song
		path string
	}
	var added []entry
	n := 0
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Info.Printf("%s: %s: %v", op, path, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		format, ok := audioFormats[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			log.Info.Printf("%s: %s: %v", op, path, err)
			return nil
		}

		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		song := library.NewSong(name)
		song.SetFormat(tx, format)
		song.SetSize(tx, uint32(info.Size()))
		song.SetDateModified(tx, info.ModTime())
		if err := db.AddSong(tx, song); err != nil {
			return err
		}
		added = append(added, entry{song, path})
		n++
		return nil
	})
	if err != nil {
		tx.Rollback()
		return errors.E(op, err)
	}
	if err := tx.Commit(); err != nil {
		return errors.E(op, err)
	}
	for _, e := range added {
		source.add(e.song.ID(), e.path)
	}
	log.Info.Printf("%s: %d songs from %s", op, n, dir)
	return nil
}
