// Copyright 2016 The Daap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Daapd serves a music library to DAAP clients.
//
// Usage:
//
//	daapd [-config file] [-addr address] [-music dir] [-log level]
//
// The config file is YAML; command-line flags override it.
package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"

	"github.com/NYTimes/gziphandler"
	"golang.org/x/net/netutil"

	"github.com/rkapsi/daap/config"
	"github.com/rkapsi/daap/library"
	"github.com/rkapsi/daap/log"
	"github.com/rkapsi/daap/server"
	"github.com/rkapsi/daap/serverutil"
)

func main() {
	var (
		configFile = flag.String("config", "", "YAML configuration `file`")
		addr       = flag.String("addr", "", "listen `address`, overriding the config")
		musicDir   = flag.String("music", "", "music `directory`, overriding the config")
		logLevel   = flag.String("log", "", "log `level` (debug, info, error, disabled)")
	)
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatal(err)
	}
	if level := pick(*logLevel, cfg.LogLevel()); level != "" {
		if err := log.SetLevel(level); err != nil {
			log.Fatal(err)
		}
	}

	lib := library.New(cfg.LibraryName())
	tx, err := lib.Open()
	if err != nil {
		log.Fatal(err)
	}
	if err := lib.AddDatabase(tx, library.NewDatabase(cfg.LibraryName())); err != nil {
		log.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		log.Fatal(err)
	}

	source := newFileSource()
	if dir := pick(*musicDir, cfg.MusicDir()); dir != "" {
		if err := scan(lib, dir, source); err != nil {
			log.Fatal(err)
		}
	}

	srv := server.New(cfg, lib, source, nil)

	mux := http.NewServeMux()
	mux.Handle("/", srv)
	mux.Handle("/status", gziphandler.GzipHandler(statusHandler(lib, srv)))

	listenAddr := pick(*addr, cfg.Addr())
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		log.Fatal(err)
	}
	if max := cfg.MaxConnections(); max > 0 {
		ln = netutil.LimitListener(ln, max)
	}

	hs := &http.Server{
		Handler:     mux,
		ConnContext: server.ConnContext,
	}
	serverutil.RegisterShutdown(0, func() {
		srv.Close()
		hs.Close()
	})

	log.Info.Printf("daapd: serving %q on %s", cfg.LibraryName(), listenAddr)
	if err := hs.Serve(ln); err != http.ErrServerClosed {
		log.Fatal(err)
	}
	serverutil.Shutdown()
}

// loadConfig reads the config file, or builds a default config when no
// file is named.
func loadConfig(name string) (*config.Config, error) {
	if name == "" {
		return config.FromBytes(nil)
	}
	return config.FromFile(name)
}

// pick returns the override when set, the fallback otherwise.
func pick(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}

// statusHandler serves a plain-text summary for humans and monitoring.
func statusHandler(lib *library.Library, srv *server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		head := lib.Head()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "library: %s\n", head.Name())
		fmt.Fprintf(w, "revision: %d\n", head.Revision())
		fmt.Fprintf(w, "sessions: %d\n", srv.Sessions().Len())
		for _, db := range head.Databases() {
			fmt.Fprintf(w, "database %d: %q, %d songs, %d playlists\n",
				db.ID(), db.Name(), db.SongCount(), db.PlaylistCount())
		}
	})
}
