package testing

import (
	"os"
	"path"
	"runtime"
)

func init() {
	// tests log into ./logs and may create sqlite files, so run them from the
	// repository root rather than from each package directory:
	//
	//   import (
	//     _ "github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/testing"
	//   )

	_, filename, _, _ := runtime.Caller(0)
	root := path.Join(path.Dir(filename), "..", "..")
	if err := os.Chdir(root); err != nil {
		panic(err)
	}
}
