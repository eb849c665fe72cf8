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

package expand

import (
	"golang.org/x/sys/unix"

	"github.com/paul-chambers/templatefs/internal/anchor"
	"github.com/paul-chambers/templatefs/internal/configstore"
	"github.com/paul-chambers/templatefs/internal/render"
)

// ProcessTemplate is the top-level render entry point (spec.md 4.C's
// process_template): it maps the template file read-only, opens the
// configuration store, pre-populates its key-set, expands the mapped bytes,
// and always unmaps and tears the store context down before returning — on
// the success path and on every failure path alike.
func ProcessTemplate(templates *anchor.TreeAnchor, relPath string, store *configstore.Store) ([]byte, int) {
	fd, err := templates.Openat(relPath, unix.O_RDONLY, 0)
	if err != nil {
		return nil, anchor.Fixup(-1, err)
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, anchor.Fixup(-1, err)
	}

	if st.Size == 0 {
		return []byte{}, 1
	}

	data, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		// spec.md 9 flags the source's bug of never checking mmap's result;
		// we check it and surface -errno.
		return nil, anchor.Fixup(-1, err)
	}
	defer unix.Munmap(data)

	ctx, rc := render.Start(store)
	if rc != 1 {
		return nil, rc
	}
	defer render.Stop(ctx, 1)

	out, err := Render(ctx, string(data))
	if err != nil {
		return nil, -int(unix.EIO)
	}
	return []byte(out), 1
}
