// Copyright 2016 The Daap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the server configuration from a YAML file and
// provides the canonical daap.Config implementation.
package config

import (
	"os"
	"strings"

	yaml "gopkg.in/yaml.v2"

	"github.com/rkapsi/daap/daap"
	"github.com/rkapsi/daap/errors"
)

// Defaults applied to fields the file leaves unset.
const (
	DefaultAddr           = ":3689"
	DefaultBacklog        = 128
	DefaultMaxConnections = 64
)

// values is the YAML shape of a config file. Unrecognized keys are an
// error, to catch typos early rather than silently running with a
// default.
type values struct {
	ServerName     string `yaml:"server-name"`
	LibraryName    string `yaml:"library-name"`
	Addr           string `yaml:"addr"`
	Backlog        int    `yaml:"backlog"`
	MaxConnections int    `yaml:"max-connections"`
	Auth           string `yaml:"auth"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	PasswordHash   string `yaml:"password-hash"`
	MusicDir       string `yaml:"music-dir"`
	LogLevel       string `yaml:"log-level"`
}

// Config is the file-backed daap.Config.
type Config struct {
	v values
}

var _ daap.Config = (*Config)(nil)

// FromFile loads a configuration from a YAML file.
func FromFile(name string) (*Config, error) {
	const op = "config.FromFile"
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	cfg, err := FromBytes(data)
	if err != nil {
		return nil, errors.E(op, errors.Errorf("%s: %v", name, err))
	}
	return cfg, nil
}

// FromBytes parses a configuration from YAML text.
func FromBytes(data []byte) (*Config, error) {
	const op = "config.FromBytes"
	cfg := &Config{
		v: values{
			ServerName:     daap.ServerName,
			Addr:           DefaultAddr,
			Backlog:        DefaultBacklog,
			MaxConnections: DefaultMaxConnections,
		},
	}
	if err := yaml.UnmarshalStrict(data, &cfg.v); err != nil {
		return nil, errors.E(op, errors.Invalid, errors.Errorf("parsing YAML: %v", err))
	}
	if cfg.v.LibraryName == "" {
		cfg.v.LibraryName = cfg.v.ServerName
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	const op = "config.FromBytes"
	switch strings.ToLower(c.v.Auth) {
	case "", "none", "basic", "digest":
	default:
		return errors.E(op, errors.Invalid, errors.Errorf("unknown auth scheme %q", c.v.Auth))
	}
	switch c.AuthScheme() {
	case daap.AuthBasic:
		if c.v.Password == "" && c.v.PasswordHash == "" {
			return errors.E(op, errors.Invalid, errors.Str("basic auth needs password or password-hash"))
		}
	case daap.AuthDigest:
		// Digest computes MD5 over the clear text, so a hash alone
		// cannot serve it.
		if c.v.Password == "" {
			return errors.E(op, errors.Invalid, errors.Str("digest auth needs a clear-text password"))
		}
	}
	if c.v.Backlog < 0 || c.v.MaxConnections < 0 {
		return errors.E(op, errors.Invalid, errors.Str("backlog and max-connections must not be negative"))
	}
	return nil
}

func (c *Config) ServerName() string  { return c.v.ServerName }
func (c *Config) LibraryName() string { return c.v.LibraryName }
func (c *Config) Addr() string        { return c.v.Addr }
func (c *Config) Backlog() int        { return c.v.Backlog }
func (c *Config) MaxConnections() int { return c.v.MaxConnections }
func (c *Config) Username() string    { return c.v.Username }
func (c *Config) Password() string    { return c.v.Password }
func (c *Config) PasswordHash() string { return c.v.PasswordHash }

// AuthScheme maps the auth key to a scheme; empty means open access.
func (c *Config) AuthScheme() daap.AuthScheme {
	switch strings.ToLower(c.v.Auth) {
	case "basic":
		return daap.AuthBasic
	case "digest":
		return daap.AuthDigest
	}
	return daap.AuthNone
}

// MusicDir is the directory scanned for audio files at startup.
func (c *Config) MusicDir() string { return c.v.MusicDir }

// LogLevel is the log verbosity name, empty for the default.
func (c *Config) LogLevel() string { return c.v.LogLevel }
