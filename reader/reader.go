// Package reader 提供扫描源：终端输入或串口 RFID 读卡器。
package reader

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
)

// LineSource 从 io.Reader 中按行读取商品 ID，空行和 # 开头的行会被忽略
type LineSource struct {
	r io.Reader
}

func NewLineSource(r io.Reader) *LineSource {
	return &LineSource{r: r}
}

func (s *LineSource) Read(ctx context.Context, out chan<- string) error {
	lines := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		defer close(lines)
		errChan <- scanTags(s.r, func(tag string) bool {
			select {
			case lines <- tag:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tag, ok := <-lines:
			if !ok {
				return <-errChan
			}
			select {
			case out <- tag:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// scanTags 按 CR 或 LF 切分标签，emit 返回 false 时停止
func scanTags(r io.Reader, emit func(tag string) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Split(splitCRLF)
	for scanner.Scan() {
		tag := strings.TrimSpace(scanner.Text())
		if tag == "" || strings.HasPrefix(tag, "#") {
			continue
		}
		if !emit(tag) {
			return nil
		}
	}
	return scanner.Err()
}

func splitCRLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
