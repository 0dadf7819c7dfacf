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

package render

import (
	"github.com/goccy/go-graphviz"
)

// WriteImage renders dot source to path in the given format ("png", "svg", ...) using an
// embedded graphviz layout engine, so a caller never needs the `dot` binary on PATH.
func WriteImage(dot string, format string, path string) error {
	g := graphviz.New()
	graph, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return err
	}
	defer func() {
		_ = graph.Close()
		_ = g.Close()
	}()
	return g.RenderFilename(graph, graphviz.Format(format), path)
}
