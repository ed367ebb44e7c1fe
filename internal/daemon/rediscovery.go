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

package daemon

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/launix-de/notebookd/internal/pool"
)

// interpreterRelPath mirrors the two backends' CreateOne layout
// (internal/pool/uvbackend.go, condabackend.go): bin/python under the
// env root on every POSIX target this daemon builds for.
const interpreterRelPath = "bin/python"

// rediscoverEnvs implements spec.md §4.J's "existing-env rediscovery":
// scan cacheDir for directories named "{prefix}-{uuid}", verify the
// interpreter still exists, and feed up to target of them back into p
// via p.Return. Broken directories (missing
// interpreter) are removed outright rather than left to rot.
//
// Pool has no direct "insert a pre-existing env" method since normal
// operation only ever adds environments it created itself; rediscovery
// reuses Return, which is exactly the "I have a ready env, offer it to
// the pool" operation and already respects the target cap.
func rediscoverEnvs(p *pool.Pool, cacheDir, prefix string, target int) {
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("daemon: rediscover %s: read %s: %v", prefix, cacheDir, err)
		}
		return
	}

	added := 0
	for _, entry := range entries {
		if added >= target {
			break
		}
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix+"-") {
			continue
		}
		root := filepath.Join(cacheDir, entry.Name())
		interpreter := filepath.Join(root, interpreterRelPath)
		if _, err := os.Stat(interpreter); err != nil {
			log.Printf("daemon: rediscover %s: removing broken env %s: %v", prefix, root, err)
			if rmErr := os.RemoveAll(root); rmErr != nil {
				log.Printf("daemon: rediscover %s: remove %s: %v", prefix, root, rmErr)
			}
			continue
		}
		p.Return(pool.PooledEnv{EnvType: prefix, RootPath: root, InterpreterPath: interpreter})
		added++
	}
	if added > 0 {
		log.Printf("daemon: rediscovered %d existing %s environment(s)", added, prefix)
	}
}
