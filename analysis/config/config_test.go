// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

func TestNewDefaultMatchesSpecDefaults(t *testing.T) {
	cfg := NewDefault()
	ec := cfg.ToEscapeConfig()
	if ec.Geometry.PointerSize != 8 {
		t.Errorf("PointerSize = %d, want 8", ec.Geometry.PointerSize)
	}
	if ec.StackArrayBudgetBytes != 65536 {
		t.Errorf("StackArrayBudgetBytes = %d, want 65536", ec.StackArrayBudgetBytes)
	}
	if ec.ConvergenceBound != 2 {
		t.Errorf("ConvergenceBound = %d, want 2", ec.ConvergenceBound)
	}
	if !ec.PropagateForcedHeap {
		t.Errorf("PropagateForcedHeap = false, want true by default")
	}
}

func TestLoadFillsInZeroFieldsWithDefaults(t *testing.T) {
	path := writeConfig(t, "pkg-filter: \"com.example\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PointerSize != 8 {
		t.Errorf("PointerSize = %d, want default 8", cfg.PointerSize)
	}
	if !cfg.MatchPkgFilter("com.example.Foo") {
		t.Errorf("expected pkg-filter to match a package under com.example")
	}
	if cfg.MatchPkgFilter("org.other.Bar") {
		t.Errorf("expected pkg-filter to reject a package outside com.example")
	}
}

func TestLoadHonorsExplicitPropagateForcedHeapFalse(t *testing.T) {
	path := writeConfig(t, "propagate-forced-heap: false\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ToEscapeConfig().PropagateForcedHeap {
		t.Errorf("expected an explicit false to be honored, not overwritten by the default")
	}
}

func TestLoadRejectsInvalidPkgFilterRegexp(t *testing.T) {
	path := writeConfig(t, "pkg-filter: \"[\"\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for an invalid pkg-filter regexp")
	}
}

func TestMatchPkgFilterDefaultsToMatchAnything(t *testing.T) {
	cfg := NewDefault()
	if !cfg.MatchPkgFilter("anything.at.all") {
		t.Errorf("expected no pkg-filter to match everything")
	}
}
