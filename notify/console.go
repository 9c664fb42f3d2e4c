package notify

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// ConsoleSender 把提示写到终端，写完才返回
type ConsoleSender struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsoleSender(out io.Writer) *ConsoleSender {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleSender{out: out}
}

func (s *ConsoleSender) Send(payload Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule := strings.Repeat("─", 40)
	fmt.Fprintf(s.out, "%s\n%s\n\n%s\n%s\n", rule, payload.Title, payload.Content, rule)
}
