package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("VENDAI_TEST_MODE") == "" {
			_ = os.Setenv("VENDAI_TEST_MODE", "1")
		}
	})
}
