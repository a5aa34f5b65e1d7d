// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package conf

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/runetale/killswitch/log"
	"github.com/runetale/killswitch/utils"
)

// Spec is the kill switch config json.
// path's here => '/etc/runetale/killswitch.json'
type Spec struct {
	TunName   string `json:"tun"`
	Permanent bool   `json:"permanent"`
	ServerIP  string `json:"server_ip"`
	LogLevel  string `json:"log_level"`
	LogFile   string `json:"log_file"`

	path string

	log *log.Logger
}

func NewSpec(path string, logger *log.Logger) *Spec {
	return &Spec{
		path: path,
		log:  logger,
	}
}

// CreateSpec loads the config file, writing one with defaults when it
// does not exist yet.
func (s *Spec) CreateSpec() (*Spec, error) {
	b, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.TunName = "runetale0"
		s.LogLevel = log.InfoLevelStr
		if err := s.writeSpec(); err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		s.log.Logger.Errorf("%s could not be read. exception error: %s", s.path, err.Error())
		return nil, err
	default:
		var spec Spec
		if err := json.Unmarshal(b, &spec); err != nil {
			s.log.Logger.Warnf("can not read kill switch config file, because %v", err)
			return nil, err
		}
		spec.path = s.path
		spec.log = s.log
		return &spec, nil
	}
}

func (s *Spec) writeSpec() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		s.log.Logger.Warnf("failed to create directory with %s, because %s", s.path, err.Error())
		return err
	}

	b, err := json.MarshalIndent(*s, "", "\t")
	if err != nil {
		return err
	}

	if err = utils.AtomicWriteFile(s.path, b, 0644); err != nil {
		s.log.Logger.Warnf("failed to write %s, because %s", s.path, err.Error())
		return err
	}

	return nil
}
