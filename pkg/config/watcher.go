// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package config

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"
)

// Watcher polls the config file and hands every successfully parsed new
// version to onChange. Invalid edits are logged and the previous config
// stays in effect.
type Watcher struct {
	path      string
	onChange  func(*Config)
	interval  time.Duration
	logger    *slog.Logger
	lastMod   time.Time
	overrides []Override
}

func NewWatcher(path string, interval time.Duration, onChange func(*Config), logger *slog.Logger, overrides ...Override) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	w := &Watcher{
		path:      path,
		onChange:  onChange,
		interval:  interval,
		logger:    logger,
		overrides: overrides,
	}
	if info, err := os.Stat(path); err == nil {
		w.lastMod = info.ModTime()
	}
	return w
}

func (w *Watcher) Watch(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check performs one poll and reports whether a new config was applied.
func (w *Watcher) Check() bool {
	info, err := os.Stat(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false
	}
	if err != nil {
		w.logger.Warn("config stat failed", "path", w.path, "error", err)
		return false
	}

	if !info.ModTime().After(w.lastMod) {
		return false
	}

	w.lastMod = info.ModTime()

	cfg, err := Load(w.path, w.overrides...)
	if err != nil {
		w.logger.Error("config reload failed", "path", w.path, "error", err)
		return false
	}

	w.onChange(cfg)
	w.logger.Info("config reloaded", "path", w.path, "admins", len(cfg.Admins))
	return true
}
