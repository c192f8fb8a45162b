package persist

import (
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/funvibe/optijit/internal/config"
)

// Version names the storage location of the running build. Entries written
// by another build of the compiler live under another version and are never
// read.
var Version = sync.OnceValue(func() string {
	build := "devel"
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			build = v
		}
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				rev := s.Value
				if len(rev) > 12 {
					rev = rev[:12]
				}
				build += "-" + rev
			}
		}
	}
	return fmt.Sprintf("v%d-%s", config.FormatVersion, sanitize(build))
})

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
