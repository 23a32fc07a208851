package index

import (
	"sync"

	"github.com/haasonsaas/turnctl/internal/rag/parser/markdown"
	"github.com/haasonsaas/turnctl/internal/rag/parser/text"
)

var registerParsersOnce sync.Once

func ensureDefaultParsers() {
	registerParsersOnce.Do(func() {
		markdown.Register()
		text.Register()
	})
}
